// Package document loads action documents from YAML into the typed tree
// the engine runs. Loading is all-or-nothing: any problem is a ConfigError
// and nothing is partially applied.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// SupportedVersion is the only accepted document version.
const SupportedVersion = 1

// Load reads and validates the document at path.
func Load(path string) (*types.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve document path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, deckerr.IOFileNotFound(abs).WithCause(err)
		case errors.Is(err, os.ErrPermission):
			return nil, deckerr.IOPermissionDenied(abs, err)
		}
		return nil, deckerr.IOReadError(abs, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	doc.Path = abs
	return doc, nil
}

// Parse decodes and validates a document.
func Parse(data []byte) (*types.Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, deckerr.Wrap(deckerr.CodeConfigInvalidValue, "document is not valid YAML", err)
	}
	v, err := nodeValue(&root)
	if err != nil {
		return nil, deckerr.Wrap(deckerr.CodeConfigInvalidValue, "document is not valid YAML", err)
	}
	if v.Kind() != types.KindMapping {
		return nil, deckerr.ConfigInvalidValue("document", v.Kind().String(), "root must be a mapping")
	}
	return buildDocument(v.Map())
}

// Key identifies a loaded document for persisted state.
func Key(doc *types.Document) string {
	if doc.Path != "" {
		return doc.Path
	}
	return "<memory>"
}
