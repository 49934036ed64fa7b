package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/meow-stack/actiondeck/internal/config"
	"github.com/meow-stack/actiondeck/internal/document"
	"github.com/meow-stack/actiondeck/internal/logging"
	"github.com/meow-stack/actiondeck/internal/status"
	"github.com/meow-stack/actiondeck/internal/types"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"

	// Global flags
	verbose bool
	workDir string
	docFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "deck",
	Short: "Run the actions of a YAML action deck",
	Long: `deck loads a YAML document of named actions and runs them.

Each action is a pipeline of steps: run a program, a nested pipeline, or a
foreach loop. Arguments come from a form whose values can be given with
--set, a values file, a saved preset or the last run.

Run 'deck' with no arguments to list the actions of deck.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", "", "working directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&docFile, "file", "f", "", "action document (default: deck.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("deck {{.Version}}\n")
}

// getWorkDir returns the effective working directory.
func getWorkDir() (string, error) {
	if workDir != "" {
		return filepath.Abs(workDir)
	}
	return os.Getwd()
}

// session is the per-invocation state shared by subcommands.
type session struct {
	dir    string
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	doc    *types.Document
}

func (s *session) Close() {
	if s.closer != nil {
		s.closer.Close()
	}
}

// openSession loads config, sets up logging and loads the document.
func openSession() (*session, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = config.LogLevelDebug
	}

	logger, closer, err := logging.NewFromConfig(cfg, dir, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	s := &session{dir: dir, cfg: cfg, logger: logger, closer: closer}

	path := cfg.DocumentPath(dir)
	if docFile != "" {
		path = docFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
	}
	s.doc, err = document.Load(path)
	if err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug("document loaded", "path", s.doc.Path, "actions", len(s.doc.Actions))
	return s, nil
}

func formatOptions() status.FormatOptions {
	return status.FormatOptions{NoColor: noColor || os.Getenv("NO_COLOR") != ""}
}
