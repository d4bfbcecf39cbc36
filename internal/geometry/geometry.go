// Package geometry models key positions on a continuous 2D plane.
package geometry

import (
	"math"
	"sort"

	"github.com/klavio/keyfit/internal/model"
)

// DefaultKeyHeight is used when a key definition omits its height.
const DefaultKeyHeight = 4.0

// Board indexes physical keys by code and by center-x for neighbor sweeps.
type Board struct {
	keys map[string]model.KeyDefinition
	byX  []string
}

// NewBoard builds a board from key definitions. A duplicated code keeps
// the last definition.
func NewBoard(keys []model.KeyDefinition) *Board {
	b := &Board{keys: make(map[string]model.KeyDefinition, len(keys))}
	for _, k := range keys {
		b.keys[k.Code] = k
	}
	b.byX = make([]string, 0, len(b.keys))
	for code := range b.keys {
		b.byX = append(b.byX, code)
	}
	sort.Slice(b.byX, func(i, j int) bool {
		xi, _ := b.center(b.byX[i])
		xj, _ := b.center(b.byX[j])
		if xi == xj {
			return b.byX[i] < b.byX[j]
		}
		return xi < xj
	})
	return b
}

// Len returns the number of keys on the board.
func (b *Board) Len() int {
	return len(b.keys)
}

// Codes returns all key codes sorted by center-x.
func (b *Board) Codes() []string {
	out := make([]string, len(b.byX))
	copy(out, b.byX)
	return out
}

// Key looks up a key definition by code.
func (b *Board) Key(code string) (model.KeyDefinition, bool) {
	k, ok := b.keys[code]
	return k, ok
}

// Center returns the center point of a key, or ok=false for an unknown
// code. Never conflate the failure case with a genuine origin point.
func (b *Board) Center(code string) (x, y float64, ok bool) {
	k, found := b.keys[code]
	if !found {
		return 0, 0, false
	}
	cx, cy := centerOf(k)
	return cx, cy, true
}

// Distance returns the Euclidean distance between two key centers, or
// ok=false when either code is unknown. A key compared to itself is
// exactly 0, independent of center arithmetic.
func (b *Board) Distance(a, c string) (float64, bool) {
	if _, ok := b.keys[a]; !ok {
		return 0, false
	}
	if _, ok := b.keys[c]; !ok {
		return 0, false
	}
	if a == c {
		return 0, true
	}
	ax, ay := centerOf(b.keys[a])
	cx, cy := centerOf(b.keys[c])
	return math.Hypot(ax-cx, ay-cy), true
}

// Neighbors returns codes of keys whose centers lie within radius of the
// given key's center, excluding the key itself. The x-sorted sweep skips
// keys left of the window and stops past its right edge; the result is
// identical to a full scan.
func (b *Board) Neighbors(code string, radius float64) []string {
	origin, ok := b.keys[code]
	if !ok || radius < 0 {
		return nil
	}
	ox, oy := centerOf(origin)

	// First index whose center-x is inside the window.
	start := sort.Search(len(b.byX), func(i int) bool {
		x, _ := b.center(b.byX[i])
		return x >= ox-radius
	})

	var out []string
	for i := start; i < len(b.byX); i++ {
		cand := b.byX[i]
		x, y := b.center(cand)
		if x > ox+radius {
			break
		}
		if cand == code {
			continue
		}
		if y < oy-radius || y > oy+radius {
			continue
		}
		if math.Hypot(x-ox, y-oy) <= radius {
			out = append(out, cand)
		}
	}
	return out
}

func (b *Board) center(code string) (float64, float64) {
	return centerOf(b.keys[code])
}

func centerOf(k model.KeyDefinition) (float64, float64) {
	h := k.Height
	if h == 0 {
		h = DefaultKeyHeight
	}
	return k.X + k.Width/2, k.Y + h/2
}
