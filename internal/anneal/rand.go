package anneal

import "time"

// lcg is a 64-bit linear congruential generator. Every random decision
// in the search draws from it, so one seed replays one trajectory
// bit-for-bit. Knuth's MMIX constants.
type lcg struct {
	state uint64
}

const (
	lcgMultiplier = 6364136223846793005
	lcgIncrement  = 1442695040888963407
)

func newLCG(seed int64) *lcg {
	return &lcg{state: uint64(seed)}
}

func (l *lcg) next() uint64 {
	l.state = l.state*lcgMultiplier + lcgIncrement
	return l.state
}

// Float64 returns a value in [0, 1).
func (l *lcg) Float64() float64 {
	return float64(l.next()>>11) / (1 << 53)
}

// Intn returns a value in [0, n). n must be positive.
func (l *lcg) Intn(n int) int {
	return int(l.next() % uint64(n))
}

// TimeSeed returns a wall-clock seed. Runs seeded this way are
// explicitly non-reproducible.
func TimeSeed() int64 {
	return time.Now().UnixNano()
}
