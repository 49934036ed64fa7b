package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meow-stack/actiondeck/internal/form"
	"github.com/meow-stack/actiondeck/internal/presets"
	"github.com/meow-stack/actiondeck/internal/types"
)

// inputFlags are the value sources shared by run and plan.
type inputFlags struct {
	set        []string
	valuesFile string
	preset     string
	last       bool
}

// readValuesFile reads a YAML mapping of field values.
func readValuesFile(path string) (*types.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading values file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing values file %s: %w", path, err)
	}
	v, err := types.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("values file %s: %w", path, err)
	}
	if v.IsNull() {
		return types.NewMap(), nil
	}
	return v.Map(), nil
}

// collectInput layers value sources for one action: last run, preset,
// values file, then --set pairs. Keys the form no longer declares are
// dropped from the stored layers with a warning.
func collectInput(store *presets.PresetStore, action *types.Action, in inputFlags, logger *slog.Logger) (*types.Map, error) {
	var layers []*types.Map

	if in.last {
		values, err := store.LastRunValues(action.ID)
		if err != nil {
			return nil, err
		}
		layers = append(layers, dropStale(action, values, "last run", logger))
	}
	if in.preset != "" {
		values, err := store.Get(action.ID, in.preset)
		if err != nil {
			return nil, err
		}
		layers = append(layers, dropStale(action, values, "preset "+in.preset, logger))
	}
	if in.valuesFile != "" {
		values, err := readValuesFile(in.valuesFile)
		if err != nil {
			return nil, err
		}
		layers = append(layers, values)
	}
	set, err := form.ParseSet(in.set)
	if err != nil {
		return nil, err
	}
	layers = append(layers, set)

	return form.Merge(layers...), nil
}

func dropStale(action *types.Action, values *types.Map, source string, logger *slog.Logger) *types.Map {
	current, stale := form.Partition(action.Form, values)
	if stale.Len() > 0 {
		logger.Warn("ignoring stored values for undeclared fields", "action", action.ID, "source", source, "fields", stale.Keys())
	}
	return current
}
