// Package preset loads keyboard profiles and action sets from TOML files.
package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/klavio/keyfit/internal/friction"
	"github.com/klavio/keyfit/internal/model"
)

type profileFile struct {
	Name     string                 `toml:"name"`
	Keys     []keyEntry             `toml:"keys"`
	Fingers  map[string]fingerEntry `toml:"fingers"`
	Movement movementEntry          `toml:"movement"`
	Locks    map[string]string      `toml:"locks"`
}

type keyEntry struct {
	Code   string  `toml:"code"`
	X      float64 `toml:"x"`
	Y      float64 `toml:"y"`
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
}

type fingerEntry struct {
	Resting   string             `toml:"resting"`
	Reach     float64            `toml:"reach"`
	Exclusive []string           `toml:"exclusive"`
	Penalties map[string]float64 `toml:"penalties"`
}

type movementEntry struct {
	Vertical   axisEntry `toml:"vertical"`
	Horizontal axisEntry `toml:"horizontal"`
}

type axisEntry struct {
	Positive  string   `toml:"positive"`
	Negative  string   `toml:"negative"`
	Fingers   []string `toml:"fingers"`
	Exclusive bool     `toml:"exclusive"`
}

type actionsFile struct {
	Actions []actionEntry `toml:"actions"`
}

type actionEntry struct {
	Name           string   `toml:"name"`
	Type           string   `toml:"type"`
	Priority       int      `toml:"priority"`
	Frequency      int      `toml:"frequency"`
	ConcurrentWith []string `toml:"concurrent-with"`
}

// LoadProfile reads and validates a keyboard profile from a TOML file.
func LoadProfile(path string) (model.Profile, error) {
	var file profileFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return model.Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	profile, err := file.toProfile()
	if err != nil {
		return model.Profile{}, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(path), ".toml")
	}
	return profile, nil
}

// LoadActions reads an action set from a TOML file.
func LoadActions(path string) ([]model.Action, error) {
	var file actionsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}
	if len(file.Actions) == 0 {
		return nil, fmt.Errorf("action set %s is empty", path)
	}
	actions := make([]model.Action, 0, len(file.Actions))
	seen := map[string]struct{}{}
	for _, e := range file.Actions {
		if e.Name == "" {
			return nil, fmt.Errorf("action set %s has an unnamed action", path)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("duplicate action %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		typ, err := model.ParseActionType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", e.Name, err)
		}
		if e.Frequency < 0 {
			return nil, fmt.Errorf("action %q has negative frequency", e.Name)
		}
		actions = append(actions, model.Action{
			Name:           e.Name,
			Type:           typ,
			Priority:       e.Priority,
			UseFrequency:   e.Frequency,
			ConcurrentWith: e.ConcurrentWith,
		})
	}
	for _, act := range actions {
		for _, other := range act.ConcurrentWith {
			if _, ok := seen[other]; !ok {
				return nil, fmt.Errorf("action %q is concurrent with unknown action %q", act.Name, other)
			}
		}
	}
	return actions, nil
}

type penaltiesEntry struct {
	Directional     *float64 `toml:"directional"`
	MovementKey     *float64 `toml:"movement-key"`
	Exclusive       *float64 `toml:"exclusive"`
	MovementFinger  *float64 `toml:"movement-finger"`
	Reach           *float64 `toml:"reach"`
	Concurrency     *float64 `toml:"concurrency"`
	FrequencyWeight *float64 `toml:"frequency-weight"`
	DistanceWeight  *float64 `toml:"distance-weight"`
}

// LoadPenalties reads the optional [penalties] table of a profile file,
// merged over the given defaults.
func LoadPenalties(path string, defaults friction.Penalties) (friction.Penalties, error) {
	var file struct {
		Penalties penaltiesEntry `toml:"penalties"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return friction.Penalties{}, fmt.Errorf("failed to decode penalties: %w", err)
	}
	p := defaults
	applyWeight(&p.Directional, file.Penalties.Directional)
	applyWeight(&p.MovementKey, file.Penalties.MovementKey)
	applyWeight(&p.Exclusive, file.Penalties.Exclusive)
	applyWeight(&p.MovementFinger, file.Penalties.MovementFinger)
	applyWeight(&p.Reach, file.Penalties.Reach)
	applyWeight(&p.Concurrency, file.Penalties.Concurrency)
	applyWeight(&p.FrequencyWeight, file.Penalties.FrequencyWeight)
	applyWeight(&p.DistanceWeight, file.Penalties.DistanceWeight)
	return p, nil
}

func applyWeight(target *float64, value *float64) {
	if value != nil {
		*target = *value
	}
}

// LoadLayout reads an action-to-key mapping from the [layout] table of a
// TOML file.
func LoadLayout(path string) (model.Layout, error) {
	var file struct {
		Layout map[string]string `toml:"layout"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode layout: %w", err)
	}
	if len(file.Layout) == 0 {
		return nil, fmt.Errorf("layout %s is empty", path)
	}
	layout := model.Layout{}
	taken := map[string]string{}
	for action, key := range file.Layout {
		if prev, dup := taken[key]; dup {
			return nil, fmt.Errorf("key %q bound to both %q and %q", key, prev, action)
		}
		taken[key] = action
		layout[action] = key
	}
	return layout, nil
}

// List returns the preset names (file names without extension) found in dir,
// sorted. A missing directory yields an empty list.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preset dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".toml"))
	}
	sort.Strings(names)
	return names, nil
}

// Resolve maps a preset name or path to a file path. Names without a path
// separator or extension are looked up in dir.
func Resolve(dir, nameOrPath string) string {
	if strings.ContainsRune(nameOrPath, os.PathSeparator) || strings.HasSuffix(nameOrPath, ".toml") {
		return nameOrPath
	}
	return filepath.Join(dir, nameOrPath+".toml")
}

func (f profileFile) toProfile() (model.Profile, error) {
	profile := model.Profile{Name: f.Name, Locks: f.Locks}

	if len(f.Keys) == 0 {
		return model.Profile{}, fmt.Errorf("no keys defined")
	}
	codes := map[string]struct{}{}
	for _, k := range f.Keys {
		if k.Code == "" {
			return model.Profile{}, fmt.Errorf("key without a code")
		}
		if _, dup := codes[k.Code]; dup {
			return model.Profile{}, fmt.Errorf("duplicate key %q", k.Code)
		}
		codes[k.Code] = struct{}{}
		profile.Keys = append(profile.Keys, model.KeyDefinition{
			Code: k.Code, X: k.X, Y: k.Y, Width: k.Width, Height: k.Height,
		})
	}

	profile.Fingers = map[model.Finger]model.FingerConfig{}
	for name, e := range f.Fingers {
		finger, err := model.ParseFinger(name)
		if err != nil {
			return model.Profile{}, err
		}
		if _, ok := codes[e.Resting]; !ok {
			return model.Profile{}, fmt.Errorf("finger %s rests on unknown key %q", finger, e.Resting)
		}
		for _, code := range e.Exclusive {
			if _, ok := codes[code]; !ok {
				return model.Profile{}, fmt.Errorf("finger %s exclusive to unknown key %q", finger, code)
			}
		}
		profile.Fingers[finger] = model.FingerConfig{
			Resting:   e.Resting,
			Reach:     e.Reach,
			Exclusive: e.Exclusive,
			Penalties: e.Penalties,
		}
	}

	var err error
	profile.Movement.Vertical, err = f.Movement.Vertical.toAxis(codes, profile.Fingers)
	if err != nil {
		return model.Profile{}, fmt.Errorf("vertical axis: %w", err)
	}
	profile.Movement.Horizontal, err = f.Movement.Horizontal.toAxis(codes, profile.Fingers)
	if err != nil {
		return model.Profile{}, fmt.Errorf("horizontal axis: %w", err)
	}

	for action, key := range f.Locks {
		if _, ok := codes[key]; !ok {
			return model.Profile{}, fmt.Errorf("lock for %q targets unknown key %q", action, key)
		}
	}
	return profile, nil
}

func (e axisEntry) toAxis(codes map[string]struct{}, fingers map[model.Finger]model.FingerConfig) (model.Axis, error) {
	axis := model.Axis{Positive: e.Positive, Negative: e.Negative, Exclusive: e.Exclusive}
	for _, code := range []string{e.Positive, e.Negative} {
		if code == "" {
			continue
		}
		if _, ok := codes[code]; !ok {
			return model.Axis{}, fmt.Errorf("unknown key %q", code)
		}
	}
	for _, name := range e.Fingers {
		finger, err := model.ParseFinger(name)
		if err != nil {
			return model.Axis{}, err
		}
		if _, ok := fingers[finger]; !ok {
			return model.Axis{}, fmt.Errorf("finger %s is not configured", finger)
		}
		axis.Fingers = append(axis.Fingers, finger)
	}
	return axis, nil
}
