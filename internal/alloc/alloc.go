// Package alloc assigns actions to keys with a greedy single pass plus a
// bounded displacement repair.
package alloc

import (
	"context"
	"strings"

	"github.com/klavio/keyfit/internal/model"
)

// Strategy is the contract shared by the greedy allocator and the
// annealing optimizer: both turn an action list and a lock map into
// bindings. Actions with no feasible key are reported in
// Result.Unassigned, never as an error.
type Strategy interface {
	Allocate(ctx context.Context, actions []model.Action, locks map[string]string) (model.Result, error)
}

// DefaultLockFinger is assumed for a locked key that has no entry in the
// scored-key table.
const DefaultLockFinger = model.RightIndex

// Concurrency is the undirected concurrency relation: two actions are
// linked when either names the other in its concurrent-with list.
type Concurrency map[string]map[string]struct{}

// NewConcurrency precomputes the relation for an action set.
func NewConcurrency(actions []model.Action) Concurrency {
	adj := make(Concurrency, len(actions))
	link := func(a, b string) {
		if adj[a] == nil {
			adj[a] = map[string]struct{}{}
		}
		adj[a][b] = struct{}{}
	}
	for _, act := range actions {
		for _, other := range act.ConcurrentWith {
			if other == act.Name {
				continue
			}
			link(act.Name, other)
			link(other, act.Name)
		}
	}
	return adj
}

// Linked reports whether two actions must stay concurrently pressable.
func (c Concurrency) Linked(x, y string) bool {
	_, ok := c[x][y]
	return ok
}

// Neighbors returns the concurrency set of one action.
func (c Concurrency) Neighbors(name string) map[string]struct{} {
	return c[name]
}

// inferAxis maps an action name to its movement axis and the axis key it
// prefers. Substring inference over the display name is a known wart kept
// for compatibility with existing profiles.
func inferAxis(name string, movement model.MovementConfig) (axis model.Axis, preferred string, ok bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "forward"):
		return movement.Vertical, movement.Vertical.Positive, true
	case strings.Contains(lower, "backward"):
		return movement.Vertical, movement.Vertical.Negative, true
	case strings.Contains(lower, "left"):
		return movement.Horizontal, movement.Horizontal.Negative, true
	case strings.Contains(lower, "right"):
		return movement.Horizontal, movement.Horizontal.Positive, true
	default:
		return model.Axis{}, "", false
	}
}

// CorrectAxisKey is the single key a directional action belongs on, used
// by the cost function. ok=false when the name implies no axis.
func CorrectAxisKey(name string, movement model.MovementConfig) (string, bool) {
	_, preferred, ok := inferAxis(name, movement)
	if !ok || preferred == "" {
		return "", false
	}
	return preferred, true
}

// AxisFingers returns the finger list of the axis a directional action
// resolves to.
func AxisFingers(name string, movement model.MovementConfig) ([]model.Finger, bool) {
	axis, _, ok := inferAxis(name, movement)
	if !ok {
		return nil, false
	}
	return axis.Fingers, true
}
