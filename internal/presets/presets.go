package presets

import (
	"sort"
	"strings"
	"sync"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/types"
)

// SchemaVersion of the presets file.
const SchemaVersion = 1

// Last-run modes.
const (
	ModeSnapshot  = "snapshot"
	ModePresetRef = "preset_ref"
)

// LastRun records what an action last ran with: a snapshot of values or a
// reference to a named preset.
type LastRun struct {
	Mode       string         `yaml:"mode"`
	Values     map[string]any `yaml:"values,omitempty"`
	PresetName string         `yaml:"preset_name,omitempty"`
}

type presetEntry struct {
	Values map[string]any `yaml:"values"`
}

type actionState struct {
	Presets map[string]presetEntry `yaml:"presets"`
	LastRun *LastRun               `yaml:"last_run,omitempty"`
}

type presetFile struct {
	Version int                     `yaml:"version"`
	Actions map[string]*actionState `yaml:"actions"`
}

// PresetStore manages the named presets of one document.
type PresetStore struct {
	path string

	mu    sync.Mutex
	state *presetFile
}

// PathFor returns the presets file beside a document.
func PathFor(docPath string) string {
	return docPath + ".presets.yaml"
}

// OpenPresetStore loads the presets of the document at docPath.
func OpenPresetStore(docPath string) *PresetStore {
	s := &PresetStore{path: PathFor(docPath)}
	s.state = s.load()
	return s
}

// Path returns the backing file.
func (s *PresetStore) Path() string { return s.path }

func (s *PresetStore) load() *presetFile {
	st := &presetFile{}
	if !readYAML(s.path, st) || st.Version != SchemaVersion || st.Actions == nil {
		return &presetFile{Version: SchemaVersion, Actions: make(map[string]*actionState)}
	}
	return st
}

func (s *PresetStore) save() error {
	l, err := lock(s.path)
	if err != nil {
		return err
	}
	defer l.release()
	return writeYAML(s.path, s.state)
}

func (s *PresetStore) action(actionID string) *actionState {
	a := s.state.Actions[actionID]
	if a == nil {
		a = &actionState{}
		s.state.Actions[actionID] = a
	}
	if a.Presets == nil {
		a.Presets = make(map[string]presetEntry)
	}
	return a
}

// List returns preset names of an action, sorted.
func (s *PresetStore) List(actionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.action(actionID)
	names := make([]string, 0, len(a.Presets))
	for name := range a.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the values of a named preset.
func (s *PresetStore) Get(actionID, name string) (*types.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.action(actionID).Presets[name]
	if !ok {
		return nil, deckerr.PresetNotFound(actionID, name)
	}
	return valuesFromGo(p.Values), nil
}

// Save creates or overwrites a named preset.
func (s *PresetStore) Save(actionID, name string, values *types.Map) error {
	if strings.TrimSpace(name) == "" {
		return deckerr.PresetInvalid(name, "name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.action(actionID).Presets[name] = presetEntry{Values: valuesToGo(values)}
	return s.save()
}

// Rename renames a preset and keeps a referencing last run in sync.
func (s *PresetStore) Rename(actionID, oldName, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return deckerr.PresetInvalid(newName, "name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.action(actionID)
	p, ok := a.Presets[oldName]
	if !ok {
		return deckerr.PresetNotFound(actionID, oldName)
	}
	if _, taken := a.Presets[newName]; taken && newName != oldName {
		return deckerr.PresetInvalid(newName, "a preset with this name already exists")
	}
	delete(a.Presets, oldName)
	a.Presets[newName] = p

	if a.LastRun != nil && a.LastRun.Mode == ModePresetRef && a.LastRun.PresetName == oldName {
		a.LastRun.PresetName = newName
	}
	return s.save()
}

// Delete removes a preset. It reports whether a last run referencing it was
// reset to an empty snapshot.
func (s *PresetStore) Delete(actionID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.action(actionID)
	if _, ok := a.Presets[name]; !ok {
		return false, deckerr.PresetNotFound(actionID, name)
	}
	delete(a.Presets, name)

	cleared := false
	if a.LastRun != nil && a.LastRun.Mode == ModePresetRef && a.LastRun.PresetName == name {
		a.LastRun = &LastRun{Mode: ModeSnapshot, Values: map[string]any{}}
		cleared = true
	}
	return cleared, s.save()
}

// LastRun returns the last-run record of an action, or nil.
func (s *PresetStore) LastRun(actionID string) *LastRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	lr := s.action(actionID).LastRun
	if lr == nil {
		return nil
	}
	cp := *lr
	return &cp
}

// LastRunValues resolves the last run to values: the snapshot, or the
// referenced preset's values.
func (s *PresetStore) LastRunValues(actionID string) (*types.Map, error) {
	lr := s.LastRun(actionID)
	if lr == nil {
		return types.NewMap(), nil
	}
	if lr.Mode == ModePresetRef {
		return s.Get(actionID, lr.PresetName)
	}
	return valuesFromGo(lr.Values), nil
}

// SaveLastRunSnapshot records the values an action ran with.
func (s *PresetStore) SaveLastRunSnapshot(actionID string, values *types.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.action(actionID).LastRun = &LastRun{Mode: ModeSnapshot, Values: valuesToGo(values)}
	return s.save()
}

// SaveLastRunRef records that an action ran with a named preset.
func (s *PresetStore) SaveLastRunRef(actionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.action(actionID)
	if _, ok := a.Presets[name]; !ok {
		return deckerr.PresetNotFound(actionID, name)
	}
	a.LastRun = &LastRun{Mode: ModePresetRef, PresetName: name}
	return s.save()
}
