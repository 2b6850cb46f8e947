package market

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Regime represents a coarse market classification
type Regime int

const (
	RegimeRanging Regime = iota
	RegimeTrending
	RegimeVolatile
)

func (r Regime) String() string {
	switch r {
	case RegimeRanging:
		return "ranging"
	case RegimeTrending:
		return "trending"
	case RegimeVolatile:
		return "volatile"
	default:
		return "unknown"
	}
}

// RegimeDetector classifies the market from recent price action.
// Volatile wins over trending: a high-dispersion market is treated as
// volatile even when it also has a slope.
type RegimeDetector struct {
	lookback       int
	volThreshold   float64
	slopeThreshold float64
}

// NewRegimeDetector creates a detector with the given thresholds.
// Zero values select the defaults (lookback 20, vol 0.001, slope 0.0001).
func NewRegimeDetector(lookback int, volThreshold, slopeThreshold float64) *RegimeDetector {
	if lookback <= 0 {
		lookback = 20
	}
	if volThreshold <= 0 {
		volThreshold = 0.001
	}
	if slopeThreshold <= 0 {
		slopeThreshold = 0.0001
	}
	return &RegimeDetector{
		lookback:       lookback,
		volThreshold:   volThreshold,
		slopeThreshold: slopeThreshold,
	}
}

// Detect classifies the regime over the last lookback prices.
// Short series default to ranging.
func (d *RegimeDetector) Detect(prices []float64) Regime {
	if len(prices) < d.lookback {
		return RegimeRanging
	}
	recent := prices[len(prices)-d.lookback:]

	if ReturnsStdDev(recent) > d.volThreshold {
		return RegimeVolatile
	}

	slopes := talib.LinearRegSlope(recent, d.lookback)
	slope := slopes[len(slopes)-1]
	if math.Abs(slope) > d.slopeThreshold {
		return RegimeTrending
	}

	return RegimeRanging
}
