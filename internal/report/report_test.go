package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/klavio/keyfit/internal/model"
)

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Action", "Key", "Score"}
	rows := [][]string{
		{"shoot", "KeyF", "0.00"},
		{"move-forward", "KeyW", "4.00"},
	}
	rightAlign := map[int]bool{2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Action       Key  Score" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "shoot        KeyF  0.00" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "move-forward KeyW  4.00" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestRenderBindings(t *testing.T) {
	var buf bytes.Buffer
	result := model.Result{
		Bindings: []model.Binding{
			{Action: "shoot", Key: "KeyF", Fingers: []model.Finger{model.LeftIndex}},
			{Action: "jump", Key: "Space", Fingers: []model.Finger{model.LeftThumb}},
		},
		Unassigned: []string{"emote"},
	}
	scored := map[string]model.ScoredKey{
		"KeyF": {Code: "KeyF", Score: 0, Finger: model.LeftIndex},
	}
	if err := RenderBindings(&buf, result, scored); err != nil {
		t.Fatalf("RenderBindings failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "shoot") || !strings.Contains(out, "left-index") {
		t.Fatalf("missing binding row: %q", out)
	}
	if !strings.Contains(out, "Unassigned: emote") {
		t.Fatalf("missing unassigned line: %q", out)
	}
	// Space has no score entry, renders as a dash.
	if !strings.Contains(out, "-") {
		t.Fatalf("missing placeholder score: %q", out)
	}
}

func TestRenderBindingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderBindings(&buf, model.Result{}, nil); err != nil {
		t.Fatalf("RenderBindings failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No actions to bind.") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestRenderHeatMapShadesLoadedKeys(t *testing.T) {
	keys := []model.KeyDefinition{
		{Code: "KeyW", X: 4, Y: 0, Width: 4, Height: 4},
		{Code: "KeyA", X: 0, Y: 4, Width: 4, Height: 4},
		{Code: "KeyS", X: 4, Y: 4, Width: 4, Height: 4},
		{Code: "KeyD", X: 8, Y: 4, Width: 4, Height: 4},
	}
	bindings := []model.Binding{
		{Action: "move-forward", Key: "KeyW"},
		{Action: "strafe-left", Key: "KeyA"},
	}
	freq := map[string]int{"move-forward": 100, "strafe-left": 10}

	var buf bytes.Buffer
	if err := RenderHeatMap(&buf, keys, bindings, freq); err != nil {
		t.Fatalf("RenderHeatMap failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Heat Map") {
		t.Fatalf("missing header: %q", out)
	}
	// Max load gets the densest ramp character.
	if !strings.Contains(out, "@") {
		t.Fatalf("missing hot key shading: %q", out)
	}
	// Unbound keys still render, faintly.
	if !strings.Contains(out, ".") {
		t.Fatalf("missing cold key shading: %q", out)
	}
	if !strings.Contains(out, "Hottest: KeyW (100), KeyA (10)") {
		t.Fatalf("missing hottest line: %q", out)
	}
}

func TestRenderScores(t *testing.T) {
	keys := []model.KeyDefinition{
		{Code: "KeyF", X: 0, Y: 0, Width: 4, Height: 4},
		{Code: "KeyG", X: 4, Y: 0, Width: 4, Height: 4},
		{Code: "KeyZ", X: 8, Y: 0, Width: 4, Height: 4},
	}
	scored := map[string]model.ScoredKey{
		"KeyF": {Code: "KeyF", Score: 0, Finger: model.LeftIndex, Origin: "KeyF", IsRestingKey: true},
		"KeyG": {Code: "KeyG", Score: 4, Finger: model.LeftIndex, Origin: "KeyF"},
	}
	var buf bytes.Buffer
	if err := RenderScores(&buf, keys, scored); err != nil {
		t.Fatalf("RenderScores failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Reach Map") {
		t.Fatalf("missing header: %q", out)
	}
	// KeyZ has no score entry and renders as unreachable.
	if !strings.Contains(out, "x") {
		t.Fatalf("missing unreachable marker: %q", out)
	}
	if !strings.Contains(out, "resting") {
		t.Fatalf("missing resting flag: %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := lines[len(lines)-1]
	// Sorted ascending by score, so the table ends with the hardest key.
	if !strings.HasPrefix(last, "KeyG") {
		t.Fatalf("unexpected final table row: %q", last)
	}
}

func TestRenderRuns(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.RunRecord{
		{ID: 2, CreatedAt: base.Add(time.Hour), Profile: "tkl", Strategy: "anneal", Seed: 7, Friction: 120.5, Assigned: 9, Unassigned: 0},
		{ID: 1, CreatedAt: base, Profile: "tkl", Strategy: "greedy", Seed: 0, Friction: 260.0, Assigned: 8, Unassigned: 1},
	}
	var buf bytes.Buffer
	if err := RenderRuns(&buf, runs); err != nil {
		t.Fatalf("RenderRuns failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "anneal") || !strings.Contains(out, "greedy") {
		t.Fatalf("missing run rows: %q", out)
	}
	if !strings.Contains(out, "120.50") {
		t.Fatalf("missing friction column: %q", out)
	}
	if !strings.Contains(out, "Friction trend:") {
		t.Fatalf("missing trend line: %q", out)
	}
}

func TestRenderRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRuns(&buf, nil); err != nil {
		t.Fatalf("RenderRuns failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No runs found.") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestSparkline(t *testing.T) {
	got := Sparkline([]float64{0, 50, 100})
	if len(got) != 3 {
		t.Fatalf("sparkline length = %d", len(got))
	}
	if got[0] != ' ' || got[2] != '@' {
		t.Fatalf("sparkline extremes = %q", got)
	}
	flat := Sparkline([]float64{5, 5, 5})
	if flat != strings.Repeat(string(heatRamp[len(heatRamp)/2]), 3) {
		t.Fatalf("flat sparkline = %q", flat)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("empty sparkline should be empty")
	}
}
