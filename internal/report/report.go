package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/klavio/keyfit/internal/model"
)

const (
	heatRamp            = " .:-=+*#%@"
	heatUnitsPerCol     = 2.0
	heatUnitsPerRow     = 4.0
	terminalWidthBackup = 80
)

// RenderBindings prints the allocation result as a table followed by the
// unassigned actions, if any.
func RenderBindings(w io.Writer, result model.Result, scored map[string]model.ScoredKey) error {
	if len(result.Bindings) == 0 && len(result.Unassigned) == 0 {
		_, err := fmt.Fprintln(w, "No actions to bind.")
		return err
	}

	headers := []string{"Action", "Key", "Fingers", "Score"}
	rows := make([][]string, 0, len(result.Bindings))
	for _, b := range result.Bindings {
		score := "-"
		if sk, ok := scored[b.Key]; ok {
			score = fmt.Sprintf("%.2f", sk.Score)
		}
		rows = append(rows, []string{b.Action, b.Key, fingerNames(b.Fingers), score})
	}
	rightAlign := map[int]bool{3: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	if len(result.Unassigned) > 0 {
		if _, err := fmt.Fprintf(w, "\nUnassigned: %s\n", strings.Join(result.Unassigned, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// RenderHeatMap draws the keyboard with each key shaded by the use
// frequency of the action bound to it. Wide keys span more columns.
func RenderHeatMap(w io.Writer, keys []model.KeyDefinition, bindings []model.Binding, freq map[string]int) error {
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "No keys defined.")
		return err
	}

	load := map[string]int{}
	maxLoad := 0
	for _, b := range bindings {
		load[b.Key] += freq[b.Action]
		if load[b.Key] > maxLoad {
			maxLoad = load[b.Key]
		}
	}

	canvas := makeCanvas(keys)
	for _, k := range keys {
		paintKey(canvas, k, heatChar(load[k.Code], maxLoad))
	}

	if _, err := fmt.Fprintln(w, "Heat Map"); err != nil {
		return err
	}
	maxWidth := terminalWidth()
	for _, row := range canvas {
		line := strings.TrimRight(string(row), " ")
		if runewidth.StringWidth(line) > maxWidth {
			line = line[:maxWidth]
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return renderHottestKeys(w, load)
}

// RenderScores draws the keyboard shaded by accessibility score (denser
// means harder to reach) and lists every scored key.
func RenderScores(w io.Writer, keys []model.KeyDefinition, scored map[string]model.ScoredKey) error {
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "No keys defined.")
		return err
	}

	maxScore := 0.0
	for _, sk := range scored {
		if sk.Score > maxScore {
			maxScore = sk.Score
		}
	}

	canvas := makeCanvas(keys)
	for _, k := range keys {
		sk, ok := scored[k.Code]
		if !ok {
			paintKey(canvas, k, 'x')
			continue
		}
		paintKey(canvas, k, scoreChar(sk.Score, maxScore))
	}

	if _, err := fmt.Fprintln(w, "Reach Map (denser is harder, x is unreachable)"); err != nil {
		return err
	}
	maxWidth := terminalWidth()
	for _, row := range canvas {
		line := strings.TrimRight(string(row), " ")
		if runewidth.StringWidth(line) > maxWidth {
			line = line[:maxWidth]
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}

	ranked := make([]model.ScoredKey, 0, len(scored))
	for _, sk := range scored {
		ranked = append(ranked, sk)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score == ranked[j].Score {
			return ranked[i].Code < ranked[j].Code
		}
		return ranked[i].Score < ranked[j].Score
	})

	headers := []string{"Key", "Score", "Finger", "Origin", "Flags"}
	rows := make([][]string, 0, len(ranked))
	for _, sk := range ranked {
		flags := make([]string, 0, 2)
		if sk.IsRestingKey {
			flags = append(flags, "resting")
		}
		if sk.IsMovement {
			flags = append(flags, "movement")
		}
		rows = append(rows, []string{
			sk.Code,
			fmt.Sprintf("%.2f", sk.Score),
			sk.Finger.String(),
			sk.Origin,
			strings.Join(flags, " "),
		})
	}
	rightAlign := map[int]bool{1: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRuns prints run history, newest first, with a friction trend
// sparkline over the runs in chronological order.
func RenderRuns(w io.Writer, runs []model.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}

	headers := []string{"ID", "Created", "Profile", "Strategy", "Seed", "Friction", "Assigned", "Unassigned"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.ID),
			r.CreatedAt.Format(time.DateTime),
			r.Profile,
			r.Strategy,
			fmt.Sprintf("%d", r.Seed),
			fmt.Sprintf("%.2f", r.Friction),
			fmt.Sprintf("%d", r.Assigned),
			fmt.Sprintf("%d", r.Unassigned),
		})
	}
	rightAlign := map[int]bool{0: true, 4: true, 5: true, 6: true, 7: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	frictions := make([]float64, len(runs))
	for i, r := range runs {
		frictions[len(runs)-1-i] = r.Friction
	}
	_, err := fmt.Fprintf(w, "\nFriction trend: %s\n", Sparkline(frictions))
	return err
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(heatRamp[len(heatRamp)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(heatRamp)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(heatRamp) {
			idx = len(heatRamp) - 1
		}
		b.WriteByte(heatRamp[idx])
	}
	return b.String()
}

func fingerNames(fingers []model.Finger) string {
	names := make([]string, len(fingers))
	for i, f := range fingers {
		names[i] = f.String()
	}
	return strings.Join(names, " ")
}

func makeCanvas(keys []model.KeyDefinition) [][]byte {
	maxCol, maxRow := 0, 0
	for _, k := range keys {
		_, _, x1, y1 := keyCells(k)
		if x1 > maxCol {
			maxCol = x1
		}
		if y1 > maxRow {
			maxRow = y1
		}
	}
	canvas := make([][]byte, maxRow+1)
	for y := range canvas {
		row := make([]byte, maxCol+1)
		for i := range row {
			row[i] = ' '
		}
		canvas[y] = row
	}
	return canvas
}

func keyCells(k model.KeyDefinition) (x0, y0, x1, y1 int) {
	width := k.Width
	if width <= 0 {
		width = heatUnitsPerCol
	}
	height := k.Height
	if height <= 0 {
		height = heatUnitsPerRow
	}
	x0 = int(math.Round(k.X / heatUnitsPerCol))
	y0 = int(math.Round(k.Y / heatUnitsPerRow))
	x1 = x0 + max(1, int(math.Round(width/heatUnitsPerCol))) - 1
	y1 = y0 + max(1, int(math.Round(height/heatUnitsPerRow))) - 1
	return x0, y0, x1, y1
}

func paintKey(canvas [][]byte, k model.KeyDefinition, ch byte) {
	x0, y0, x1, y1 := keyCells(k)
	for y := y0; y <= y1 && y < len(canvas); y++ {
		for x := x0; x <= x1 && x < len(canvas[y]); x++ {
			canvas[y][x] = ch
		}
	}
}

func scoreChar(score, maxScore float64) byte {
	if maxScore <= 0 {
		return heatRamp[1]
	}
	pos := score / maxScore
	idx := 1 + int(math.Round(pos*float64(len(heatRamp)-2)))
	if idx < 1 {
		idx = 1
	}
	if idx >= len(heatRamp) {
		idx = len(heatRamp) - 1
	}
	return heatRamp[idx]
}

func heatChar(load, maxLoad int) byte {
	if load <= 0 || maxLoad <= 0 {
		return heatRamp[1]
	}
	pos := float64(load) / float64(maxLoad)
	idx := 2 + int(math.Round(pos*float64(len(heatRamp)-3)))
	if idx < 2 {
		idx = 2
	}
	if idx >= len(heatRamp) {
		idx = len(heatRamp) - 1
	}
	return heatRamp[idx]
}

func renderHottestKeys(w io.Writer, load map[string]int) error {
	type keyLoad struct {
		code string
		load int
	}
	hot := make([]keyLoad, 0, len(load))
	for code, l := range load {
		if l > 0 {
			hot = append(hot, keyLoad{code, l})
		}
	}
	if len(hot) == 0 {
		return nil
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].load == hot[j].load {
			return hot[i].code < hot[j].code
		}
		return hot[i].load > hot[j].load
	})
	if len(hot) > 5 {
		hot = hot[:5]
	}
	parts := make([]string, len(hot))
	for i, h := range hot {
		parts[i] = fmt.Sprintf("%s (%d)", h.code, h.load)
	}
	_, err := fmt.Fprintf(w, "Hottest: %s\n", strings.Join(parts, ", "))
	return err
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}
