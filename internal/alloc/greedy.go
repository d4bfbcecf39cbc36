package alloc

import (
	"context"
	"math"
	"sort"

	"github.com/klavio/keyfit/internal/model"
)

const (
	// Per-unit weights of the inline candidate ranking.
	frequencyPull = 0.1
	loadPush      = 0.05

	// Reach-cap base: priority 100 caps reach at capBase units no matter
	// what the finger's configured reach is.
	capBase = 4.0
)

// Greedy allocates actions to keys in one deterministic frequency-ordered
// pass, then runs a single displacement-repair pass for concurrency-bound
// actions left without a key.
type Greedy struct {
	profile      model.Profile
	scored       map[string]model.ScoredKey
	candidates   []model.ScoredKey
	movementKeys map[string]struct{}
	movementOnly map[model.Finger]struct{}
}

// NewGreedy builds an allocator over a profile and its scored-key table.
// Neither input is mutated; each Allocate call works on fresh state.
func NewGreedy(profile model.Profile, scored map[string]model.ScoredKey) *Greedy {
	candidates := make([]model.ScoredKey, 0, len(scored))
	for _, sk := range scored {
		candidates = append(candidates, sk)
	}
	// Ascending (score, code) makes "first found wins ties" deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].Code < candidates[j].Code
		}
		return candidates[i].Score < candidates[j].Score
	})
	return &Greedy{
		profile:      profile,
		scored:       scored,
		candidates:   candidates,
		movementKeys: profile.Movement.Keys(),
		movementOnly: profile.Movement.ExclusiveFingers(),
	}
}

// Allocate runs both phases. Locks are honored verbatim and shadow every
// other constraint.
func (g *Greedy) Allocate(ctx context.Context, actions []model.Action, locks map[string]string) (model.Result, error) {
	if err := ctx.Err(); err != nil {
		return model.Result{}, err
	}
	adj := NewConcurrency(actions)
	st := g.pass(actions, locks, adj)

	if repaired, ok := g.repairLocks(actions, locks, adj, st); ok {
		st = g.pass(actions, repaired, adj)
	}
	return st.result(actions), nil
}

// passState is the working state of one allocation pass.
type passState struct {
	bindings []model.Binding
	byKey    map[string]string
	byAction map[string]model.Binding
	byFinger map[model.Finger][]string
	load     map[model.Finger]int
}

func newPassState() *passState {
	return &passState{
		byKey:    map[string]string{},
		byAction: map[string]model.Binding{},
		byFinger: map[model.Finger][]string{},
		load:     map[model.Finger]int{},
	}
}

func (st *passState) bind(b model.Binding, freq int) {
	st.bindings = append(st.bindings, b)
	st.byKey[b.Key] = b.Action
	st.byAction[b.Action] = b
	for _, f := range b.Fingers {
		st.byFinger[f] = append(st.byFinger[f], b.Action)
	}
	if len(b.Fingers) > 0 {
		st.load[b.Fingers[0]] += freq
	}
}

func (st *passState) result(actions []model.Action) model.Result {
	var unassigned []string
	for _, act := range actions {
		if _, ok := st.byAction[act.Name]; !ok {
			unassigned = append(unassigned, act.Name)
		}
	}
	return model.Result{Bindings: st.bindings, Unassigned: unassigned}
}

// pass is the single greedy sweep: locks first, then the directional
// axis shortcut, then scored-candidate selection, in descending
// use-frequency order.
func (g *Greedy) pass(actions []model.Action, locks map[string]string, adj Concurrency) *passState {
	ordered := make([]model.Action, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].UseFrequency > ordered[j].UseFrequency
	})

	lockedKeys := map[string]string{}
	for name, key := range locks {
		lockedKeys[key] = name
	}

	st := newPassState()
	for _, act := range ordered {
		if key, ok := locks[act.Name]; ok {
			st.bind(model.Binding{Action: act.Name, Key: key, Fingers: []model.Finger{g.lockFinger(key)}}, act.UseFrequency)
			continue
		}
		if act.Type == model.Directional {
			g.bindDirectional(st, act, lockedKeys)
			continue
		}
		g.bindScored(st, act, lockedKeys, adj)
	}
	return st
}

func (g *Greedy) lockFinger(key string) model.Finger {
	if sk, ok := g.scored[key]; ok {
		return sk.Finger
	}
	return DefaultLockFinger
}

// bindDirectional puts the action on its axis: the sign-preferred key
// when free, the opposite key otherwise. A key locked to another action
// counts as taken even before the lock's owner is bound. Both axis keys
// unavailable means unassigned this pass.
func (g *Greedy) bindDirectional(st *passState, act model.Action, lockedKeys map[string]string) {
	axis, preferred, ok := inferAxis(act.Name, g.profile.Movement)
	if !ok {
		return
	}
	key := preferred
	if key == "" || axisKeyTaken(st, lockedKeys, act.Name, key) {
		if other := otherAxisKey(axis, preferred); other != "" && !axisKeyTaken(st, lockedKeys, act.Name, other) {
			key = other
		} else {
			return
		}
	}
	fingers := axis.Fingers
	if len(fingers) == 0 {
		return
	}
	st.bind(model.Binding{Action: act.Name, Key: key, Fingers: fingers}, act.UseFrequency)
}

func otherAxisKey(axis model.Axis, preferred string) string {
	if preferred == axis.Positive {
		return axis.Negative
	}
	return axis.Positive
}

func taken(st *passState, key string) bool {
	_, ok := st.byKey[key]
	return ok
}

func axisKeyTaken(st *passState, lockedKeys map[string]string, action, key string) bool {
	if taken(st, key) {
		return true
	}
	owner, locked := lockedKeys[key]
	return locked && owner != action
}

// bindScored selects the cheapest surviving scored key for a regular
// action: base distance, pulled closer by frequency, pushed away by the
// owning finger's accumulated load.
func (g *Greedy) bindScored(st *passState, act model.Action, lockedKeys map[string]string, adj Concurrency) {
	blocked := g.blockedFingers(st, act, adj)
	capFor := reachCap(act, g.profile.Fingers)

	bestSet := false
	var best model.ScoredKey
	bestRank := 0.0
	for _, sk := range g.candidates {
		if taken(st, sk.Code) || sk.IsMovement {
			continue
		}
		if owner, locked := lockedKeys[sk.Code]; locked && owner != act.Name {
			continue
		}
		if _, movementOnly := g.movementOnly[sk.Finger]; movementOnly {
			continue
		}
		if _, ok := g.profile.Fingers[sk.Finger]; !ok {
			continue
		}
		if _, isBlocked := blocked[sk.Finger]; isBlocked {
			continue
		}
		if sk.Score > capFor(sk.Finger) {
			continue
		}
		rank := sk.Score - float64(act.UseFrequency)*frequencyPull + float64(st.load[sk.Finger])*loadPush
		if !bestSet || rank < bestRank {
			best, bestRank, bestSet = sk, rank, true
		}
	}
	if !bestSet {
		return
	}
	st.bind(model.Binding{Action: act.Name, Key: best.Code, Fingers: []model.Finger{best.Finger}}, act.UseFrequency)
}

// blockedFingers collects the fingers already occupied by actions the
// given action must stay concurrently pressable with.
func (g *Greedy) blockedFingers(st *passState, act model.Action, adj Concurrency) map[model.Finger]struct{} {
	blocked := map[model.Finger]struct{}{}
	for other := range adj.Neighbors(act.Name) {
		b, ok := st.byAction[other]
		if !ok {
			continue
		}
		for _, f := range b.Fingers {
			blocked[f] = struct{}{}
		}
	}
	return blocked
}

// reachCap returns the priority-scaled score ceiling per finger.
// Priority 0 lifts the cap entirely; priority 100 pins it at capBase.
func reachCap(act model.Action, fingers map[model.Finger]model.FingerConfig) func(model.Finger) float64 {
	if act.Priority <= 0 {
		return func(model.Finger) float64 { return math.Inf(1) }
	}
	scale := float64(100-act.Priority) / 99.0
	return func(f model.Finger) float64 {
		return capBase + (fingers[f].Reach-capBase)*scale
	}
}

// repairLocks builds the augmented lock set for the single repair
// iteration: every concurrency-carrying action left unassigned claims the
// key of the cheapest non-conflicting victim. Returns ok=false when
// nothing can be repaired.
func (g *Greedy) repairLocks(actions []model.Action, locks map[string]string, adj Concurrency, st *passState) (map[string]string, bool) {
	byName := make(map[string]model.Action, len(actions))
	for _, act := range actions {
		byName[act.Name] = act
	}

	augmented := make(map[string]string, len(locks))
	for k, v := range locks {
		augmented[k] = v
	}
	claimed := map[string]struct{}{}

	found := false
	for _, act := range actions {
		if len(act.ConcurrentWith) == 0 {
			continue
		}
		if _, bound := st.byAction[act.Name]; bound {
			continue
		}
		blocked := g.blockedFingers(st, act, adj)
		victim, ok := pickVictim(st.bindings, act, adj, blocked, byName, locks, claimed)
		if !ok {
			continue
		}
		augmented[act.Name] = victim.Key
		claimed[victim.Key] = struct{}{}
		found = true
	}
	return augmented, found
}

// pickVictim scans bindings in encounter order for the lowest-frequency
// binding whose finger is free of the repairing action's concurrency set
// and whose action is not itself in that set. Locked bindings are never
// victims: their keys stay with the locking action on the re-run.
func pickVictim(bindings []model.Binding, act model.Action, adj Concurrency, blocked map[model.Finger]struct{}, byName map[string]model.Action, locks map[string]string, claimed map[string]struct{}) (model.Binding, bool) {
	var victim model.Binding
	victimFreq := 0
	found := false
	for _, b := range bindings {
		if adj.Linked(act.Name, b.Action) {
			continue
		}
		if _, locked := locks[b.Action]; locked {
			continue
		}
		if _, used := claimed[b.Key]; used {
			continue
		}
		conflict := false
		for _, f := range b.Fingers {
			if _, ok := blocked[f]; ok {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		freq := byName[b.Action].UseFrequency
		if !found || freq < victimFreq {
			victim, victimFreq, found = b, freq, true
		}
	}
	return victim, found
}
