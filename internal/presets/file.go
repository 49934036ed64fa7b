// Package presets persists form values: the last submitted values per
// document and action, and named presets stored beside a document.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/meow-stack/actiondeck/internal/types"
)

// fileLock is an exclusive advisory lock serializing read-modify-write
// cycles between deck processes sharing a store file.
type fileLock struct {
	file *os.File
	path string
}

func lock(path string) (*fileLock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &fileLock{file: f, path: lockPath}, nil
}

func (l *fileLock) release() {
	if l.file == nil {
		return
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
}

// recoverInterruptedWrite handles a .tmp file left by a crashed write: an
// orphan beside an existing file is removed, otherwise it is promoted.
func recoverInterruptedWrite(path string) {
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); err != nil {
		return
	}
	if _, err := os.Stat(path); err == nil {
		os.Remove(tmpPath)
	} else {
		os.Rename(tmpPath, path)
	}
}

// readYAML decodes path into out. A missing or unparsable file leaves out
// untouched and reports false.
func readYAML(path string, out any) bool {
	recoverInterruptedWrite(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return yaml.Unmarshal(data, out) == nil
}

// writeYAML persists v atomically (write-then-rename).
func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// valuesToGo converts form values for YAML encoding.
func valuesToGo(m *types.Map) map[string]any {
	out := make(map[string]any)
	if m == nil {
		return out
	}
	m.Range(func(k string, v types.Value) bool {
		out[k] = v.ToGo()
		return true
	})
	return out
}

// valuesFromGo converts decoded YAML back to form values. Entries that do
// not convert are dropped.
func valuesFromGo(raw map[string]any) *types.Map {
	v, err := types.FromGo(raw)
	if err != nil || v.Kind() != types.KindMapping {
		m := types.NewMap()
		for k, item := range raw {
			if iv, err := types.FromGo(item); err == nil {
				m.Set(k, iv)
			}
		}
		return m
	}
	return v.Map()
}
