// Package friction scores complete layouts. Lower is better; hard
// constraint violations carry penalties orders of magnitude above the
// tunable comfort weights, so no amount of comfort can outweigh a broken
// rule.
package friction

import (
	"sort"

	"github.com/klavio/keyfit/internal/alloc"
	"github.com/klavio/keyfit/internal/model"
)

// imbalanceFactor scales the whole-layout finger load spread.
const imbalanceFactor = 0.5

// Penalties holds every weight of the cost function. Hard penalties
// (Directional, MovementKey, Exclusive, MovementFinger) must stay orders
// of magnitude above the soft ones for the dominance guarantee to hold.
type Penalties struct {
	Directional     float64
	MovementKey     float64
	Exclusive       float64
	MovementFinger  float64
	Reach           float64
	Concurrency     float64
	FrequencyWeight float64
	DistanceWeight  float64
}

// DefaultPenalties returns the standard weight set.
func DefaultPenalties() Penalties {
	return Penalties{
		Directional:     1_000_000,
		MovementKey:     100_000,
		Exclusive:       100_000,
		MovementFinger:  100_000,
		Reach:           50,
		Concurrency:     100,
		FrequencyWeight: 0.1,
		DistanceWeight:  1.0,
	}
}

// Context carries the precomputed lookups one evaluation needs. Build it
// once per profile+action set and share it across evaluations.
type Context struct {
	Actions        map[string]model.Action
	Scored         map[string]model.ScoredKey
	Fingers        map[model.Finger]model.FingerConfig
	Movement       model.MovementConfig
	Concurrency    alloc.Concurrency
	movementKeys   map[string]struct{}
	movementOnly   map[model.Finger]struct{}
	exclusiveOwner map[string]model.Finger
}

// NewContext indexes the actions and derives the exclusivity and
// movement lookups from the profile.
func NewContext(actions []model.Action, scored map[string]model.ScoredKey, profile model.Profile) *Context {
	byName := make(map[string]model.Action, len(actions))
	for _, act := range actions {
		byName[act.Name] = act
	}
	owners := map[string]model.Finger{}
	for _, f := range model.AllFingers() {
		cfg, ok := profile.Fingers[f]
		if !ok {
			continue
		}
		for _, key := range cfg.Exclusive {
			owners[key] = f
		}
	}
	return &Context{
		Actions:        byName,
		Scored:         scored,
		Fingers:        profile.Fingers,
		Movement:       profile.Movement,
		Concurrency:    alloc.NewConcurrency(actions),
		movementKeys:   profile.Movement.Keys(),
		movementOnly:   profile.Movement.ExclusiveFingers(),
		exclusiveOwner: owners,
	}
}

// FingerFor resolves the finger an action occupies under the layout. A
// directional action on an axis key belongs to the axis's first finger;
// everything else follows the scored-key table. ok=false when the key is
// unscored and no axis applies.
func (c *Context) FingerFor(act model.Action, key string) (model.Finger, bool) {
	if act.Type == model.Directional {
		if correct, ok := alloc.CorrectAxisKey(act.Name, c.Movement); ok && key == correct {
			if fingers, ok := alloc.AxisFingers(act.Name, c.Movement); ok && len(fingers) > 0 {
				return fingers[0], true
			}
		}
	}
	if sk, ok := c.Scored[key]; ok {
		return sk.Finger, true
	}
	return 0, false
}

// Score evaluates one complete layout. It never mutates its inputs and
// is safe to call from independent searches over the same Context.
func Score(layout model.Layout, ctx *Context, p Penalties) float64 {
	total := 0.0
	load := map[model.Finger]int{}

	names := make([]string, 0, len(layout))
	for name := range layout {
		names = append(names, name)
	}
	sort.Strings(names)

	fingers := make(map[string]model.Finger, len(layout))
	for _, name := range names {
		key := layout[name]
		act, known := ctx.Actions[name]
		if !known {
			continue
		}

		finger, hasFinger := ctx.FingerFor(act, key)
		if hasFinger {
			fingers[name] = finger
			load[finger] += act.UseFrequency
		}

		if act.Type == model.Directional {
			correct, ok := alloc.CorrectAxisKey(act.Name, ctx.Movement)
			if !ok || key != correct {
				total += p.Directional
			}
		} else if _, onMovement := ctx.movementKeys[key]; onMovement {
			total += p.MovementKey
		}

		if hasFinger {
			// Exclusivity mismatches add once per violated direction.
			if cfg, ok := ctx.Fingers[finger]; ok && len(cfg.Exclusive) > 0 && !contains(cfg.Exclusive, key) {
				total += p.Exclusive
			}
			if owner, claimed := ctx.exclusiveOwner[key]; claimed && owner != finger {
				total += p.Exclusive
			}
			if _, movementOnly := ctx.movementOnly[finger]; movementOnly && act.Type != model.Directional {
				total += p.MovementFinger
			}
		}

		if sk, ok := ctx.Scored[key]; ok {
			total += sk.Score*float64(act.UseFrequency)*p.FrequencyWeight + sk.Score*p.DistanceWeight
			if hasFinger {
				if cfg, ok := ctx.Fingers[finger]; ok && sk.Score > cfg.Reach {
					total += p.Reach
				}
			}
		}
	}

	// Concurrency conflicts: each linked pair sharing a finger pays once.
	for i, a := range names {
		fa, ok := fingers[a]
		if !ok {
			continue
		}
		for _, b := range names[i+1:] {
			if !ctx.Concurrency.Linked(a, b) {
				continue
			}
			if fb, ok := fingers[b]; ok && fa == fb {
				total += p.Concurrency
			}
		}
	}

	total += imbalance(load) * imbalanceFactor
	return total
}

// imbalance is the spread between the most and least loaded fingers,
// considering only fingers that hold at least one action.
func imbalance(load map[model.Finger]int) float64 {
	if len(load) == 0 {
		return 0
	}
	first := true
	minLoad, maxLoad := 0, 0
	for _, l := range load {
		if first {
			minLoad, maxLoad = l, l
			first = false
			continue
		}
		if l < minLoad {
			minLoad = l
		}
		if l > maxLoad {
			maxLoad = l
		}
	}
	return float64(maxLoad - minLoad)
}

func contains(keys []string, code string) bool {
	for _, k := range keys {
		if k == code {
			return true
		}
	}
	return false
}
