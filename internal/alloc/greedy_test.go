package alloc

import (
	"context"
	"testing"

	"github.com/klavio/keyfit/internal/geometry"
	"github.com/klavio/keyfit/internal/model"
	"github.com/klavio/keyfit/internal/scorer"
)

// testProfile lays out one home row plus a movement cluster and scores
// it with two free fingers.
func testProfile(t *testing.T) (model.Profile, map[string]model.ScoredKey) {
	t.Helper()
	profile := model.Profile{
		Name: "test",
		Keys: []model.KeyDefinition{
			{Code: "KeyW", X: 4, Y: 0, Width: 4, Height: 4},
			{Code: "KeyA", X: 0, Y: 4, Width: 4, Height: 4},
			{Code: "KeyS", X: 4, Y: 4, Width: 4, Height: 4},
			{Code: "KeyD", X: 8, Y: 4, Width: 4, Height: 4},
			{Code: "KeyF", X: 12, Y: 4, Width: 4, Height: 4},
			{Code: "KeyG", X: 16, Y: 4, Width: 4, Height: 4},
			{Code: "KeyJ", X: 24, Y: 4, Width: 4, Height: 4},
			{Code: "KeyK", X: 28, Y: 4, Width: 4, Height: 4},
		},
		Fingers: map[model.Finger]model.FingerConfig{
			model.LeftMiddle: {Resting: "KeyS", Reach: 12},
			model.LeftIndex:  {Resting: "KeyF", Reach: 12},
			model.RightIndex: {Resting: "KeyJ", Reach: 12},
		},
		Movement: model.MovementConfig{
			Vertical:   model.Axis{Positive: "KeyW", Negative: "KeyS", Fingers: []model.Finger{model.LeftMiddle}},
			Horizontal: model.Axis{Positive: "KeyD", Negative: "KeyA", Fingers: []model.Finger{model.LeftMiddle}},
		},
	}
	board := geometry.NewBoard(profile.Keys)
	scored := scorer.Score(board, profile.Fingers, profile.Movement.Keys(), boardCodes(board))
	return profile, scored
}

func boardCodes(b *geometry.Board) []string {
	return b.Codes()
}

func allocate(t *testing.T, g *Greedy, actions []model.Action, locks map[string]string) model.Result {
	t.Helper()
	res, err := g.Allocate(context.Background(), actions, locks)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	return res
}

func bindingFor(res model.Result, action string) (model.Binding, bool) {
	for _, b := range res.Bindings {
		if b.Action == action {
			return b, true
		}
	}
	return model.Binding{}, false
}

func assertNoDuplicateKeys(t *testing.T, res model.Result) {
	t.Helper()
	seen := map[string]string{}
	for _, b := range res.Bindings {
		if prev, dup := seen[b.Key]; dup {
			t.Fatalf("key %s bound to both %s and %s", b.Key, prev, b.Action)
		}
		seen[b.Key] = b.Action
	}
}

func TestFrequencyOrderPicksCloserKey(t *testing.T) {
	// One finger, two keys at distances 0 and 4: the high-frequency
	// action must take the resting key even though it is listed second.
	profile := model.Profile{
		Keys: []model.KeyDefinition{
			{Code: "KeyF", X: 0, Y: 0, Width: 4, Height: 4},
			{Code: "KeyG", X: 4, Y: 0, Width: 4, Height: 4},
		},
		Fingers: map[model.Finger]model.FingerConfig{
			model.LeftIndex: {Resting: "KeyF", Reach: 10},
		},
	}
	scored := scorerScore(geometry.NewBoard(profile.Keys), profile)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "reload", Type: model.Utility, UseFrequency: 10},
		{Name: "shoot", Type: model.Combat, UseFrequency: 100},
	}
	res := allocate(t, g, actions, nil)

	shoot, ok := bindingFor(res, "shoot")
	if !ok || shoot.Key != "KeyF" {
		t.Fatalf("expected shoot on the distance-0 key, got %+v ok=%v", shoot, ok)
	}
	reload, ok := bindingFor(res, "reload")
	if !ok || reload.Key != "KeyG" {
		t.Fatalf("expected reload on the distance-4 key, got %+v ok=%v", reload, ok)
	}
}

func TestNoKeyBoundTwice(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "one", Type: model.Combat, UseFrequency: 90},
		{Name: "two", Type: model.Combat, UseFrequency: 80},
		{Name: "three", Type: model.Utility, UseFrequency: 70},
		{Name: "four", Type: model.Utility, UseFrequency: 60},
		{Name: "five", Type: model.Menu, UseFrequency: 50},
	}
	res := allocate(t, g, actions, nil)
	assertNoDuplicateKeys(t, res)
}

func TestLockHonoredVerbatim(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "crouch", Type: model.Utility, UseFrequency: 20},
		{Name: "jump", Type: model.Utility, UseFrequency: 95},
	}
	res := allocate(t, g, actions, map[string]string{"crouch": "KeyF"})

	crouch, ok := bindingFor(res, "crouch")
	if !ok || crouch.Key != "KeyF" {
		t.Fatalf("expected crouch locked to KeyF, got %+v ok=%v", crouch, ok)
	}
	jump, ok := bindingFor(res, "jump")
	if !ok {
		t.Fatalf("jump unbound")
	}
	if jump.Key == "KeyF" {
		t.Fatalf("locked key leaked to another action")
	}
}

func TestLockOnUnscoredKeyFallsBackToDefaultFinger(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{{Name: "ping", Type: model.Menu, UseFrequency: 5}}
	res := allocate(t, g, actions, map[string]string{"ping": "MouseExtra1"})

	ping, ok := bindingFor(res, "ping")
	if !ok || ping.Key != "MouseExtra1" {
		t.Fatalf("expected lock on unscored key honored, got %+v", ping)
	}
	if ping.Finger() != DefaultLockFinger {
		t.Fatalf("expected default finger %v, got %v", DefaultLockFinger, ping.Finger())
	}
}

func TestDirectionalResolvesToAxisKeys(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "move-forward", Type: model.Directional, UseFrequency: 100},
		{Name: "move-backward", Type: model.Directional, UseFrequency: 90},
		{Name: "strafe-left", Type: model.Directional, UseFrequency: 80},
		{Name: "strafe-right", Type: model.Directional, UseFrequency: 85},
	}
	res := allocate(t, g, actions, nil)

	want := map[string]string{
		"move-forward":  "KeyW",
		"move-backward": "KeyS",
		"strafe-left":   "KeyA",
		"strafe-right":  "KeyD",
	}
	for action, key := range want {
		b, ok := bindingFor(res, action)
		if !ok {
			t.Fatalf("%s unbound", action)
		}
		if b.Key != key {
			t.Fatalf("%s: expected %s, got %s", action, key, b.Key)
		}
		if b.Finger() != model.LeftMiddle {
			t.Fatalf("%s: expected axis finger, got %v", action, b.Finger())
		}
	}
}

func TestDirectionalFallsBackToFreeAxisKey(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	// Two actions on the same axis sign: the second takes the other key,
	// a third is left unassigned.
	actions := []model.Action{
		{Name: "lean-forward", Type: model.Directional, UseFrequency: 100},
		{Name: "dash-forward", Type: model.Directional, UseFrequency: 90},
		{Name: "roll-forward", Type: model.Directional, UseFrequency: 80},
	}
	res := allocate(t, g, actions, nil)

	lean, _ := bindingFor(res, "lean-forward")
	dash, _ := bindingFor(res, "dash-forward")
	if lean.Key != "KeyW" || dash.Key != "KeyS" {
		t.Fatalf("expected axis keys W then S, got %q and %q", lean.Key, dash.Key)
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0] != "roll-forward" {
		t.Fatalf("expected roll-forward unassigned, got %v", res.Unassigned)
	}
}

func TestDirectionalYieldsAxisKeyToLock(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	// KeyW is reserved for jump before the higher-frequency directional
	// gets its turn; move-forward must fall back to the other axis key.
	actions := []model.Action{
		{Name: "move-forward", Type: model.Directional, UseFrequency: 100},
		{Name: "jump", Type: model.Utility, UseFrequency: 60},
	}
	res := allocate(t, g, actions, map[string]string{"jump": "KeyW"})

	jump, ok := bindingFor(res, "jump")
	if !ok || jump.Key != "KeyW" {
		t.Fatalf("expected jump locked to KeyW, got %+v ok=%v", jump, ok)
	}
	forward, ok := bindingFor(res, "move-forward")
	if !ok || forward.Key != "KeyS" {
		t.Fatalf("expected move-forward on the free axis key, got %+v ok=%v", forward, ok)
	}
	assertNoDuplicateKeys(t, res)
}

func TestDirectionalUnassignedWhenBothAxisKeysLocked(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "move-forward", Type: model.Directional, UseFrequency: 100},
		{Name: "jump", Type: model.Utility, UseFrequency: 60},
		{Name: "crouch", Type: model.Utility, UseFrequency: 50},
	}
	res := allocate(t, g, actions, map[string]string{"jump": "KeyW", "crouch": "KeyS"})

	if _, ok := bindingFor(res, "move-forward"); ok {
		t.Fatalf("directional bound despite both axis keys locked away")
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0] != "move-forward" {
		t.Fatalf("expected move-forward unassigned, got %v", res.Unassigned)
	}
	assertNoDuplicateKeys(t, res)
}

func TestMovementKeysExcludedFromRegularActions(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "shoot", Type: model.Combat, UseFrequency: 100},
		{Name: "reload", Type: model.Utility, UseFrequency: 80},
		{Name: "use", Type: model.Utility, UseFrequency: 60},
		{Name: "map", Type: model.Menu, UseFrequency: 40},
	}
	res := allocate(t, g, actions, nil)

	movement := profile.Movement.Keys()
	for _, b := range res.Bindings {
		if _, onMovement := movement[b.Key]; onMovement {
			t.Fatalf("action %s landed on movement key %s", b.Action, b.Key)
		}
	}
}

func TestMovementExclusiveFingerBlocked(t *testing.T) {
	profile, scored := testProfile(t)
	profile.Movement.Vertical.Exclusive = true
	profile.Movement.Horizontal.Exclusive = true
	g := NewGreedy(profile, scored)

	actions := []model.Action{{Name: "shoot", Type: model.Combat, UseFrequency: 100}}
	res := allocate(t, g, actions, nil)

	shoot, ok := bindingFor(res, "shoot")
	if !ok {
		t.Fatalf("shoot unbound")
	}
	if shoot.Finger() == model.LeftMiddle {
		t.Fatalf("movement-exclusive finger used for a combat action")
	}
}

func TestPriorityCapLimitsReach(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	// Priority 100 caps reach at 4 units; the only keys within 4 of a
	// resting position that are not movement keys are the resting keys
	// themselves and their direct neighbors.
	actions := []model.Action{{Name: "melee", Type: model.Combat, Priority: 100, UseFrequency: 50}}
	res := allocate(t, g, actions, nil)

	melee, ok := bindingFor(res, "melee")
	if !ok {
		t.Fatalf("melee unbound despite in-cap candidates")
	}
	if scored[melee.Key].Score > 4 {
		t.Fatalf("priority-capped action got key at distance %v", scored[melee.Key].Score)
	}
}

func TestConcurrencyBlocksSharedFinger(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "shoot", Type: model.Combat, UseFrequency: 100},
		{Name: "aim", Type: model.Combat, UseFrequency: 90, ConcurrentWith: []string{"shoot"}},
	}
	res := allocate(t, g, actions, nil)

	shoot, _ := bindingFor(res, "shoot")
	aim, ok := bindingFor(res, "aim")
	if !ok {
		t.Fatalf("aim unbound")
	}
	if shoot.Finger() == aim.Finger() {
		t.Fatalf("concurrent actions share finger %v", shoot.Finger())
	}
}

func TestDisplacementRepairFreesFinger(t *testing.T) {
	profile, _ := testProfile(t)
	// Two usable fingers, four free keys. Every key is taken before aim's
	// turn, so aim can only be placed by displacing the lowest-frequency
	// binding on the finger shoot does not occupy.
	delete(profile.Fingers, model.LeftMiddle)
	board := geometry.NewBoard(profile.Keys)
	scored := scorerScore(board, profile)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "shoot", Type: model.Combat, UseFrequency: 100},
		{Name: "sprint", Type: model.Utility, UseFrequency: 95},
		{Name: "ping", Type: model.Menu, UseFrequency: 90},
		{Name: "use", Type: model.Utility, UseFrequency: 85},
		{Name: "aim", Type: model.Combat, UseFrequency: 80, ConcurrentWith: []string{"shoot"}},
	}
	res := allocate(t, g, actions, nil)

	aim, ok := bindingFor(res, "aim")
	if !ok {
		t.Fatalf("expected repair pass to place aim, unassigned=%v", res.Unassigned)
	}
	shoot, _ := bindingFor(res, "shoot")
	if aim.Finger() == shoot.Finger() {
		t.Fatalf("repair left aim on a blocked finger")
	}
	// Exactly one action loses out after the single repair iteration.
	if len(res.Unassigned) != 1 {
		t.Fatalf("expected one displaced action unassigned, got %v", res.Unassigned)
	}
}

func TestRepairNeverDisplacesLockedBinding(t *testing.T) {
	profile, _ := testProfile(t)
	delete(profile.Fingers, model.LeftMiddle)
	scored := scorerScore(geometry.NewBoard(profile.Keys), profile)
	g := NewGreedy(profile, scored)

	// ping's lock is the lowest-frequency binding on the finger aim needs,
	// so it is the displacement the repair would otherwise reach for. It
	// must be passed over in favor of the next eligible binding.
	actions := []model.Action{
		{Name: "shoot", Type: model.Combat, UseFrequency: 100},
		{Name: "sprint", Type: model.Utility, UseFrequency: 95},
		{Name: "use", Type: model.Utility, UseFrequency: 90},
		{Name: "aim", Type: model.Combat, UseFrequency: 85, ConcurrentWith: []string{"shoot"}},
		{Name: "ping", Type: model.Menu, UseFrequency: 20},
	}
	res := allocate(t, g, actions, map[string]string{"ping": "KeyK"})

	ping, ok := bindingFor(res, "ping")
	if !ok || ping.Key != "KeyK" {
		t.Fatalf("expected ping to keep its locked key, got %+v ok=%v", ping, ok)
	}
	aim, ok := bindingFor(res, "aim")
	if !ok {
		t.Fatalf("expected repair pass to place aim, unassigned=%v", res.Unassigned)
	}
	if aim.Key == "KeyK" {
		t.Fatalf("repair handed aim a locked key")
	}
	shoot, _ := bindingFor(res, "shoot")
	if aim.Finger() == shoot.Finger() {
		t.Fatalf("repair left aim on a blocked finger")
	}
	assertNoDuplicateKeys(t, res)
}

func TestRepairLeavesActionUnassignedWithoutVictim(t *testing.T) {
	profile, scored := testProfile(t)
	delete(profile.Fingers, model.LeftMiddle)
	delete(profile.Fingers, model.RightIndex)
	board := geometry.NewBoard(profile.Keys)
	scored = scorerScore(board, profile)
	g := NewGreedy(profile, scored)

	// One finger total: every victim's finger is blocked, so the repair
	// finds nothing and aim stays unassigned.
	actions := []model.Action{
		{Name: "shoot", Type: model.Combat, UseFrequency: 100},
		{Name: "aim", Type: model.Combat, UseFrequency: 90, ConcurrentWith: []string{"shoot"}},
	}
	res := allocate(t, g, actions, nil)

	if _, ok := bindingFor(res, "aim"); ok {
		t.Fatalf("aim should be unassignable with a single finger")
	}
	if len(res.Unassigned) != 1 || res.Unassigned[0] != "aim" {
		t.Fatalf("expected aim reported unassigned, got %v", res.Unassigned)
	}
}

func TestStableOrderOnEqualFrequency(t *testing.T) {
	profile, scored := testProfile(t)
	g := NewGreedy(profile, scored)

	actions := []model.Action{
		{Name: "first", Type: model.Combat, UseFrequency: 50},
		{Name: "second", Type: model.Combat, UseFrequency: 50},
	}
	res := allocate(t, g, actions, nil)

	first, _ := bindingFor(res, "first")
	second, _ := bindingFor(res, "second")
	if scored[first.Key].Score > scored[second.Key].Score {
		t.Fatalf("tie broken against input order: first=%v second=%v",
			scored[first.Key].Score, scored[second.Key].Score)
	}
}

func scorerScore(board *geometry.Board, profile model.Profile) map[string]model.ScoredKey {
	return scorer.Score(board, profile.Fingers, profile.Movement.Keys(), board.Codes())
}
