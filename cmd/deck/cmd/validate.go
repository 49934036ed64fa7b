package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meow-stack/actiondeck/internal/pipeline"
	"github.com/meow-stack/actiondeck/internal/template"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the action document",
	Long: `Validate the action document without running anything.

Checks:
- YAML syntax and document version
- Required fields and field types
- Unique step ids
- Template syntax in when, argv and foreach expressions
- Argument specs`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	r := template.New(nil)
	failed := 0
	for _, a := range s.doc.Actions {
		if err := pipeline.Validate(a, r); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %v\n", a.ID, err)
			failed++
			continue
		}
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", a.ID)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d action(s) failed validation", failed)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d action(s))\n", s.doc.Path, len(s.doc.Actions))
	return nil
}
