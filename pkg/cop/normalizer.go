package cop

import (
	"math"
	"sync"
)

// defaultAssumedMaxCOP scales RoughNormalize when no assumed maximum is
// configured; hot-water COP rarely exceeds this on real installations.
const defaultAssumedMaxCOP = 4.0

// Normalizer maps raw COP values onto a 0-1 efficiency score using an
// adaptively tracked observed range. The range only ever widens.
type Normalizer struct {
	mu          sync.Mutex
	minObserved float64
	maxObserved float64
	updateCount int
}

// NewNormalizer creates a Normalizer with no observations.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// UpdateRange widens the observed min/max with a new COP observation.
// This is the only mutator; non-finite or non-positive values are ignored.
func (n *Normalizer) UpdateRange(cop float64) {
	if math.IsNaN(cop) || math.IsInf(cop, 0) || cop <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updateCount == 0 {
		n.minObserved = cop
		n.maxObserved = cop
	} else {
		if cop < n.minObserved {
			n.minObserved = cop
		}
		if cop > n.maxObserved {
			n.maxObserved = cop
		}
	}
	n.updateCount++
}

// Normalize maps cop onto [0,1] by linear interpolation between the
// observed min and max. With no observations (or a degenerate range) it
// returns a neutral 0.5.
func (n *Normalizer) Normalize(cop float64) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updateCount == 0 || n.maxObserved <= n.minObserved {
		return 0.5
	}
	score := (cop - n.minObserved) / (n.maxObserved - n.minObserved)
	return clamp(score, 0, 1)
}

// RoughNormalize is a stateless fallback normalization against an assumed
// maximum, used before an adaptive range exists (hot-water COP is scaled
// differently than heating COP).
func (n *Normalizer) RoughNormalize(cop, assumedMax float64) float64 {
	if assumedMax <= 0 {
		assumedMax = defaultAssumedMaxCOP
	}
	if math.IsNaN(cop) || math.IsInf(cop, 0) || cop <= 0 {
		return 0
	}
	return clamp(cop/assumedMax, 0, 1)
}

// Range returns the observed range and update count.
func (n *Normalizer) Range() (minObserved, maxObserved float64, updateCount int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.minObserved, n.maxObserved, n.updateCount
}
