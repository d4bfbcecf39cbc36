// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Finger identifies one of the ten fingers. The enumeration is closed;
// configuration maps over it may be partial.
type Finger int

// Fingers, left hand first, pinky to thumb.
const (
	LeftPinky Finger = iota
	LeftRing
	LeftMiddle
	LeftIndex
	LeftThumb
	RightPinky
	RightRing
	RightMiddle
	RightIndex
	RightThumb
)

// FingerCount is the size of the closed finger enumeration.
const FingerCount = 10

var fingerNames = [FingerCount]string{
	"left-pinky", "left-ring", "left-middle", "left-index", "left-thumb",
	"right-pinky", "right-ring", "right-middle", "right-index", "right-thumb",
}

// String returns the canonical kebab-case finger name.
func (f Finger) String() string {
	if f < 0 || int(f) >= FingerCount {
		return fmt.Sprintf("finger(%d)", int(f))
	}
	return fingerNames[f]
}

// Valid reports whether f is one of the ten fingers.
func (f Finger) Valid() bool {
	return f >= 0 && int(f) < FingerCount
}

// ParseFinger parses a canonical finger name.
func ParseFinger(s string) (Finger, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range fingerNames {
		if n == name {
			return Finger(i), nil
		}
	}
	return 0, fmt.Errorf("unknown finger %q", s)
}

// AllFingers returns the ten fingers in enumeration order.
func AllFingers() []Finger {
	out := make([]Finger, FingerCount)
	for i := range out {
		out[i] = Finger(i)
	}
	return out
}

// KeyDefinition describes one physical key. Width and Height may be zero;
// a zero height falls back to the geometry default.
type KeyDefinition struct {
	Code   string
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// FingerConfig describes how one finger rests on and reaches the board.
// A finger with a non-empty Exclusive list may use only those keys, and
// those keys may be used by no other finger.
type FingerConfig struct {
	Resting   string
	Reach     float64
	Exclusive []string
	Penalties map[string]float64
}

// Axis is one movement direction pair. When Exclusive is set, the owning
// fingers may never serve non-movement actions.
type Axis struct {
	Positive  string
	Negative  string
	Fingers   []Finger
	Exclusive bool
}

// MovementConfig holds the two orthogonal movement axes.
type MovementConfig struct {
	Vertical   Axis
	Horizontal Axis
}

// Keys returns the set of key codes claimed by either axis.
func (m MovementConfig) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, 4)
	for _, code := range []string{m.Vertical.Positive, m.Vertical.Negative, m.Horizontal.Positive, m.Horizontal.Negative} {
		if code != "" {
			keys[code] = struct{}{}
		}
	}
	return keys
}

// ExclusiveFingers returns the fingers reserved for movement only.
func (m MovementConfig) ExclusiveFingers() map[Finger]struct{} {
	out := map[Finger]struct{}{}
	for _, axis := range []Axis{m.Vertical, m.Horizontal} {
		if !axis.Exclusive {
			continue
		}
		for _, f := range axis.Fingers {
			out[f] = struct{}{}
		}
	}
	return out
}

// ActionType classifies an action.
type ActionType int

// Action types.
const (
	Directional ActionType = iota
	Movement
	Combat
	Utility
	Menu
)

var actionTypeNames = [...]string{
	Directional: "directional",
	Movement:    "movement",
	Combat:      "combat",
	Utility:     "utility",
	Menu:        "menu",
}

// String returns the lower-case action type name.
func (t ActionType) String() string {
	if t < 0 || int(t) >= len(actionTypeNames) {
		return fmt.Sprintf("actiontype(%d)", int(t))
	}
	return actionTypeNames[t]
}

// ParseActionType parses an action type name, case-insensitively.
func ParseActionType(s string) (ActionType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range actionTypeNames {
		if n == name {
			return ActionType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action type %q", s)
}

// Action is one assignable input action. Priority 0 means unconstrained
// reach; higher values tighten the reach cap. UseFrequency (0-100) weights
// the action during allocation. ConcurrentWith lists actions that must
// stay pressable at the same time as this one.
type Action struct {
	Name           string
	Type           ActionType
	Priority       int
	UseFrequency   int
	ConcurrentWith []string
}

// ScoredKey is the accessibility score of one key under a profile.
type ScoredKey struct {
	Code         string
	Score        float64
	Finger       Finger
	Origin       string
	IsRestingKey bool
	IsMovement   bool
}

// Binding assigns one action to one key. Fingers holds every finger the
// binding occupies (movement axes may span several); Fingers[0] carries
// the load.
type Binding struct {
	Action  string
	Key     string
	Fingers []Finger
}

// Finger returns the load-bearing finger of the binding.
func (b Binding) Finger() Finger {
	if len(b.Fingers) == 0 {
		return LeftPinky
	}
	return b.Fingers[0]
}

// Layout maps action names to key codes. A well-formed layout is
// injective: no key appears twice.
type Layout map[string]string

// Clone returns an independent copy of the layout.
func (l Layout) Clone() Layout {
	out := make(Layout, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Result is the output of an allocation strategy. Unassigned lists the
// actions present in the input that received no key, in input order.
type Result struct {
	Bindings   []Binding
	Unassigned []string
}

// Profile bundles one keyboard configuration: physical keys, per-finger
// setup, and the movement axes. Fingers may be partial; an absent finger
// is simply never considered.
type Profile struct {
	Name     string
	Keys     []KeyDefinition
	Fingers  map[Finger]FingerConfig
	Movement MovementConfig
	Locks    map[string]string
}

// RunRecord summarizes one persisted allocation run.
type RunRecord struct {
	ID         int64
	CreatedAt  time.Time
	Profile    string
	Strategy   string
	Seed       int64
	Friction   float64
	Assigned   int
	Unassigned int
}
