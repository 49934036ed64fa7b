// Package testutil provides fixtures and helpers shared by deck tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meow-stack/actiondeck/internal/config"
)

// SampleDocument is a small deck with a form, a nested pipeline and a
// foreach loop.
const SampleDocument = `version: 1
app:
  title: Sample deck
vars:
  out_dir: build
actions:
  build:
    title: Build
    form:
      fields:
        - id: target
          type: choice
          options: [debug, release]
          default: debug
        - id: langs
          type: multichoice
          options: [en, fr, de]
          default: [en]
    pipeline:
      - id: compile
        run:
          program: make
          argv: ["${form.target}", {opt: -o, from: "${vars.out_dir}"}]
      - id: translations
        foreach:
          in: "${form.langs}"
          as: lang
          steps:
            - id: msgfmt
              run:
                program: msgfmt
                argv: ["${lang}"]
  clean:
    title: Clean
    run:
      program: rm
      argv: ["-rf", "${vars.out_dir}"]
`

// WriteDocument writes content as deck.yaml in dir and returns its path.
func WriteDocument(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "deck.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing document: %v", err)
	}
	return path
}

// NewProject creates a temporary project directory holding content as
// deck.yaml.
func NewProject(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	WriteDocument(t, dir, content)
	return dir
}

// NewTestConfig creates a configuration whose state and log files live in
// a temporary directory.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.StateFile = filepath.Join(tmpDir, "state.yaml")
	cfg.Logging.File = filepath.Join(tmpDir, "deck.log")
	cfg.Logging.Level = config.LogLevelDebug
	return cfg
}
