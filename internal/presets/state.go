package presets

import (
	"sync"

	"github.com/meow-stack/actiondeck/internal/types"
)

const stateVersion = 1

type stateFile struct {
	Version int `yaml:"version"`
	// Documents maps document key -> action id -> field id -> value.
	Documents map[string]map[string]map[string]any `yaml:"documents"`
}

// StateStore keeps the last submitted values per document and action in a
// single YAML file. Secret fields must be removed by the caller.
type StateStore struct {
	path string
	mu   sync.Mutex
}

// NewStateStore creates a store backed by path. The file is created on the
// first Put.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the backing file.
func (s *StateStore) Path() string { return s.path }

// Get returns the stored values, or an empty map.
func (s *StateStore) Get(docKey, actionID string) (*types.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	return valuesFromGo(st.Documents[docKey][actionID]), nil
}

// Put replaces the stored values of one action.
func (s *StateStore) Put(docKey, actionID string, values *types.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := lock(s.path)
	if err != nil {
		return err
	}
	defer l.release()

	st := s.load()
	actions := st.Documents[docKey]
	if actions == nil {
		actions = make(map[string]map[string]any)
		st.Documents[docKey] = actions
	}
	actions[actionID] = valuesToGo(values)
	return writeYAML(s.path, st)
}

// load reads the file; unreadable or wrong-version files load as empty.
func (s *StateStore) load() *stateFile {
	st := &stateFile{}
	if !readYAML(s.path, st) || st.Version != stateVersion || st.Documents == nil {
		return &stateFile{Version: stateVersion, Documents: make(map[string]map[string]map[string]any)}
	}
	return st
}
