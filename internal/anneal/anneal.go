// Package anneal searches for low-friction layouts with simulated
// annealing over a feasible warm start.
package anneal

import (
	"context"
	"math"
	"sort"

	"github.com/klavio/keyfit/internal/alloc"
	"github.com/klavio/keyfit/internal/friction"
	"github.com/klavio/keyfit/internal/model"
)

// Mutation move split: swap / load balance / conflict resolution.
const (
	swapShare    = 0.70
	balanceShare = 0.20
)

// Options control the annealing schedule. The loop ends when the
// temperature falls below MinTemp or MaxIterations is reached, whichever
// comes first.
type Options struct {
	Seed          int64
	InitialTemp   float64
	CoolingRate   float64
	MinTemp       float64
	MaxIterations int
}

// DefaultOptions returns a schedule suited to action sets of a few dozen
// entries.
func DefaultOptions() Options {
	return Options{
		InitialTemp:   1000,
		CoolingRate:   0.995,
		MinTemp:       0.001,
		MaxIterations: 200_000,
	}
}

// Optimizer is one configured search. It satisfies the same allocation
// contract as the greedy allocator.
type Optimizer struct {
	profile   model.Profile
	scored    map[string]model.ScoredKey
	penalties friction.Penalties
	opts      Options
}

// New builds an optimizer over a profile and its scored-key table.
func New(profile model.Profile, scored map[string]model.ScoredKey, penalties friction.Penalties, opts Options) *Optimizer {
	return &Optimizer{profile: profile, scored: scored, penalties: penalties, opts: opts}
}

// Allocate runs the annealing loop and converts the best layout seen
// into bindings. Locked actions keep their keys and are never mutated.
// Cancellation is checked between iterations.
func (o *Optimizer) Allocate(ctx context.Context, actions []model.Action, locks map[string]string) (model.Result, error) {
	fctx := friction.NewContext(actions, o.scored, o.profile)
	layout := o.warmStart(actions, locks)

	mutable := mutableActions(layout, locks)
	rng := newLCG(o.opts.Seed)

	current := layout
	currentScore := friction.Score(current, fctx, o.penalties)
	best := current.Clone()
	bestScore := currentScore

	temp := o.opts.InitialTemp
	for iter := 0; temp >= o.opts.MinTemp; iter++ {
		if err := ctx.Err(); err != nil {
			return model.Result{}, err
		}
		if o.opts.MaxIterations > 0 && iter >= o.opts.MaxIterations {
			break
		}

		candidate := o.mutate(current, mutable, fctx, rng)
		score := friction.Score(candidate, fctx, o.penalties)
		delta := score - currentScore
		if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
			current, currentScore = candidate, score
			if currentScore < bestScore {
				best, bestScore = current.Clone(), currentScore
			}
		}
		temp *= o.opts.CoolingRate
	}

	return o.toResult(actions, best, fctx), nil
}

// BestScore evaluates a layout with this optimizer's weights; exposed so
// callers can report the friction of the result they were handed.
func (o *Optimizer) BestScore(actions []model.Action, layout model.Layout) float64 {
	fctx := friction.NewContext(actions, o.scored, o.profile)
	return friction.Score(layout, fctx, o.penalties)
}

// warmStart builds the feasible starting layout: locks, then directional
// actions on their axis keys, then exclusive keys fed by the
// highest-frequency actions, then first-fit over the cheapest free keys.
// Actions that find no free key stay out of the layout for good.
func (o *Optimizer) warmStart(actions []model.Action, locks map[string]string) model.Layout {
	layout := model.Layout{}
	usedKeys := map[string]struct{}{}
	assign := func(name, key string) {
		layout[name] = key
		usedKeys[key] = struct{}{}
	}

	for _, act := range actions {
		if key, ok := locks[act.Name]; ok {
			assign(act.Name, key)
		}
	}

	for _, act := range actions {
		if act.Type != model.Directional {
			continue
		}
		if _, done := layout[act.Name]; done {
			continue
		}
		key, ok := alloc.CorrectAxisKey(act.Name, o.profile.Movement)
		if !ok {
			continue
		}
		if _, taken := usedKeys[key]; taken {
			continue
		}
		assign(act.Name, key)
	}

	// Remaining actions by descending frequency, ties in input order.
	remaining := make([]model.Action, 0, len(actions))
	for _, act := range actions {
		if _, done := layout[act.Name]; !done {
			remaining = append(remaining, act)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].UseFrequency > remaining[j].UseFrequency
	})
	pop := func() (model.Action, bool) {
		if len(remaining) == 0 {
			return model.Action{}, false
		}
		act := remaining[0]
		remaining = remaining[1:]
		return act, true
	}

	for _, f := range model.AllFingers() {
		cfg, ok := o.profile.Fingers[f]
		if !ok {
			continue
		}
		for _, key := range cfg.Exclusive {
			if _, taken := usedKeys[key]; taken {
				continue
			}
			act, ok := pop()
			if !ok {
				break
			}
			assign(act.Name, key)
		}
	}

	for _, sk := range o.rankedKeys() {
		if len(remaining) == 0 {
			break
		}
		if _, taken := usedKeys[sk.Code]; taken {
			continue
		}
		act, _ := pop()
		assign(act.Name, sk.Code)
	}

	return layout
}

// rankedKeys lists the scored keys in ascending (score, code) order.
func (o *Optimizer) rankedKeys() []model.ScoredKey {
	keys := make([]model.ScoredKey, 0, len(o.scored))
	for _, sk := range o.scored {
		keys = append(keys, sk)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Score == keys[j].Score {
			return keys[i].Code < keys[j].Code
		}
		return keys[i].Score < keys[j].Score
	})
	return keys
}

// mutableActions returns the sorted action names the search may move.
func mutableActions(layout model.Layout, locks map[string]string) []string {
	names := make([]string, 0, len(layout))
	for name := range layout {
		if _, locked := locks[name]; locked {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mutate picks one of three moves. A move that cannot apply returns the
// current layout unchanged (a no-op candidate).
func (o *Optimizer) mutate(current model.Layout, mutable []string, fctx *friction.Context, rng *lcg) model.Layout {
	roll := rng.Float64()
	switch {
	case roll < swapShare:
		return swapRandomPair(current, mutable, rng)
	case roll < swapShare+balanceShare:
		return o.rebalanceLoad(current, mutable, fctx, rng)
	default:
		return o.resolveConflict(current, mutable, fctx, rng)
	}
}

// swapRandomPair exchanges the keys of two uniformly chosen distinct
// actions.
func swapRandomPair(current model.Layout, mutable []string, rng *lcg) model.Layout {
	if len(mutable) < 2 {
		return current
	}
	i := rng.Intn(len(mutable))
	j := rng.Intn(len(mutable) - 1)
	if j >= i {
		j++
	}
	return swapped(current, mutable[i], mutable[j])
}

// rebalanceLoad swaps a random action on the most loaded finger with a
// random action on the least loaded one. Loads are tallied over every
// assigned action, locked ones included; only mutable actions are swap
// candidates. With fewer than two distinct loads it is a no-op.
func (o *Optimizer) rebalanceLoad(current model.Layout, mutable []string, fctx *friction.Context, rng *lcg) model.Layout {
	loads := map[model.Finger]int{}
	for name, key := range current {
		act, ok := fctx.Actions[name]
		if !ok {
			continue
		}
		if finger, ok := fctx.FingerFor(act, key); ok {
			loads[finger] += act.UseFrequency
		}
	}
	byFinger := map[model.Finger][]string{}
	for _, name := range mutable {
		act, ok := fctx.Actions[name]
		if !ok {
			continue
		}
		if finger, ok := fctx.FingerFor(act, current[name]); ok {
			byFinger[finger] = append(byFinger[finger], name)
		}
	}
	if len(loads) < 2 {
		return current
	}

	var maxFinger, minFinger model.Finger
	first := true
	for _, f := range model.AllFingers() {
		l, ok := loads[f]
		if !ok {
			continue
		}
		if first {
			maxFinger, minFinger = f, f
			first = false
			continue
		}
		if l > loads[maxFinger] {
			maxFinger = f
		}
		if l < loads[minFinger] {
			minFinger = f
		}
	}
	if loads[maxFinger] == loads[minFinger] {
		return current
	}

	heavy := byFinger[maxFinger]
	light := byFinger[minFinger]
	if len(heavy) == 0 || len(light) == 0 {
		return current
	}
	a := heavy[rng.Intn(len(heavy))]
	b := light[rng.Intn(len(light))]
	return swapped(current, a, b)
}

// resolveConflict finds the first mutually concurrent pair sharing a
// finger and swaps one of them with a random unrelated action.
func (o *Optimizer) resolveConflict(current model.Layout, mutable []string, fctx *friction.Context, rng *lcg) model.Layout {
	fingers := map[string]model.Finger{}
	for _, name := range mutable {
		act, ok := fctx.Actions[name]
		if !ok {
			continue
		}
		if f, ok := fctx.FingerFor(act, current[name]); ok {
			fingers[name] = f
		}
	}

	for i, a := range mutable {
		fa, ok := fingers[a]
		if !ok {
			continue
		}
		for _, b := range mutable[i+1:] {
			if !fctx.Concurrency.Linked(a, b) {
				continue
			}
			fb, ok := fingers[b]
			if !ok || fa != fb {
				continue
			}
			others := make([]string, 0, len(mutable))
			for _, name := range mutable {
				if name == a || name == b {
					continue
				}
				others = append(others, name)
			}
			if len(others) == 0 {
				return current
			}
			return swapped(current, a, others[rng.Intn(len(others))])
		}
	}
	return current
}

func swapped(current model.Layout, a, b string) model.Layout {
	next := current.Clone()
	next[a], next[b] = current[b], current[a]
	return next
}

// toResult converts the best layout into the shared binding contract.
// Bindings and unassigned actions keep input order.
func (o *Optimizer) toResult(actions []model.Action, layout model.Layout, fctx *friction.Context) model.Result {
	var res model.Result
	for _, act := range actions {
		key, ok := layout[act.Name]
		if !ok {
			res.Unassigned = append(res.Unassigned, act.Name)
			continue
		}
		res.Bindings = append(res.Bindings, model.Binding{
			Action:  act.Name,
			Key:     key,
			Fingers: o.bindingFingers(act, key, fctx),
		})
	}
	return res
}

func (o *Optimizer) bindingFingers(act model.Action, key string, fctx *friction.Context) []model.Finger {
	if act.Type == model.Directional {
		if correct, ok := alloc.CorrectAxisKey(act.Name, o.profile.Movement); ok && key == correct {
			if fingers, ok := alloc.AxisFingers(act.Name, o.profile.Movement); ok && len(fingers) > 0 {
				return fingers
			}
		}
	}
	if f, ok := fctx.FingerFor(act, key); ok {
		return []model.Finger{f}
	}
	return []model.Finger{alloc.DefaultLockFinger}
}
