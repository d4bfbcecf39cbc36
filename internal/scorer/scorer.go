// Package scorer computes per-key accessibility scores for a profile.
package scorer

import (
	"github.com/klavio/keyfit/internal/geometry"
	"github.com/klavio/keyfit/internal/model"
)

// Score rates every requested key: which finger reaches it cheapest and
// at what cost. Keys reachable by no configured finger are dropped.
func Score(board *geometry.Board, fingers map[model.Finger]model.FingerConfig, movement map[string]struct{}, codes []string) map[string]model.ScoredKey {
	out := make(map[string]model.ScoredKey, len(codes))
	for _, code := range codes {
		if sk, ok := scoreKey(board, fingers, movement, code); ok {
			out[code] = sk
		}
	}
	return out
}

// scoreKey scores a single key. An exclusive claim short-circuits the
// search: the owning finger is the sole candidate. Otherwise only fingers
// without an exclusive list compete, and the cheapest wins.
func scoreKey(board *geometry.Board, fingers map[model.Finger]model.FingerConfig, movement map[string]struct{}, code string) (model.ScoredKey, bool) {
	_, isMovement := movement[code]

	for _, f := range model.AllFingers() {
		cfg, ok := fingers[f]
		if !ok {
			continue
		}
		if !containsKey(cfg.Exclusive, code) {
			continue
		}
		cost, ok := fingerCost(board, cfg, code)
		if !ok {
			return model.ScoredKey{}, false
		}
		return model.ScoredKey{
			Code:         code,
			Score:        cost,
			Finger:       f,
			Origin:       cfg.Resting,
			IsRestingKey: cost == 0,
			IsMovement:   isMovement,
		}, true
	}

	best := model.ScoredKey{}
	found := false
	for _, f := range model.AllFingers() {
		cfg, ok := fingers[f]
		if !ok || len(cfg.Exclusive) > 0 {
			continue
		}
		cost, ok := fingerCost(board, cfg, code)
		if !ok {
			continue
		}
		if !found || cost < best.Score {
			best = model.ScoredKey{
				Code:         code,
				Score:        cost,
				Finger:       f,
				Origin:       cfg.Resting,
				IsRestingKey: cost == 0,
				IsMovement:   isMovement,
			}
			found = true
		}
	}
	return best, found
}

// fingerCost is the per-key penalty override plus the travel distance
// from the finger's resting key. The resting key itself travels 0.
func fingerCost(board *geometry.Board, cfg model.FingerConfig, code string) (float64, bool) {
	cost := cfg.Penalties[code]
	if code == cfg.Resting {
		return cost, true
	}
	d, ok := board.Distance(cfg.Resting, code)
	if !ok {
		return 0, false
	}
	return cost + d, true
}

func containsKey(keys []string, code string) bool {
	for _, k := range keys {
		if k == code {
			return true
		}
	}
	return false
}
