package market

import (
	"math"
	"testing"
)

func TestRegimeDetector_ShortSeriesIsRanging(t *testing.T) {
	d := NewRegimeDetector(20, 0, 0)
	prices := []float64{1200, 1201, 1202}
	if r := d.Detect(prices); r != RegimeRanging {
		t.Errorf("Expected ranging for short series, got %s", r)
	}
}

func TestRegimeDetector_FlatSeriesIsRanging(t *testing.T) {
	d := NewRegimeDetector(20, 0, 0)
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 1200.0
	}
	if r := d.Detect(prices); r != RegimeRanging {
		t.Errorf("Expected ranging for flat series, got %s", r)
	}
}

func TestRegimeDetector_SteadySlopeIsTrending(t *testing.T) {
	d := NewRegimeDetector(20, 0, 0)
	// Small steady drift: slope well above threshold, return dispersion tiny.
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 1200.0 + 0.01*float64(i)
	}
	if r := d.Detect(prices); r != RegimeTrending {
		t.Errorf("Expected trending for steady drift, got %s", r)
	}
}

func TestRegimeDetector_ChoppySeriesIsVolatile(t *testing.T) {
	d := NewRegimeDetector(20, 0, 0)
	// Alternate +-0.5% moves: returns dispersion far above the 0.001 threshold.
	prices := make([]float64, 25)
	prices[0] = 1200.0
	for i := 1; i < len(prices); i++ {
		if i%2 == 0 {
			prices[i] = prices[i-1] * 1.005
		} else {
			prices[i] = prices[i-1] * 0.995
		}
	}
	if r := d.Detect(prices); r != RegimeVolatile {
		t.Errorf("Expected volatile for choppy series, got %s", r)
	}
}

func TestRegimeDetector_VolatileWinsOverTrend(t *testing.T) {
	d := NewRegimeDetector(20, 0, 0)
	// Strong drift plus large alternating noise: both conditions hold, volatile wins.
	prices := make([]float64, 25)
	prices[0] = 1200.0
	for i := 1; i < len(prices); i++ {
		noise := 0.004
		if i%2 == 0 {
			noise = -0.004
		}
		prices[i] = prices[i-1]*(1+noise) + 0.5
	}
	if r := d.Detect(prices); r != RegimeVolatile {
		t.Errorf("Expected volatile to dominate, got %s", r)
	}
}

func TestRegime_String(t *testing.T) {
	cases := map[Regime]string{
		RegimeRanging:  "ranging",
		RegimeTrending: "trending",
		RegimeVolatile: "volatile",
		Regime(42):     "unknown",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Errorf("Regime(%d).String(): expected %q, got %q", int(r), want, got)
		}
	}
}

func TestRegimeDetector_DefaultThresholds(t *testing.T) {
	d := NewRegimeDetector(0, 0, 0)
	if d.lookback != 20 {
		t.Errorf("Expected default lookback 20, got %d", d.lookback)
	}
	if math.Abs(d.volThreshold-0.001) > 1e-12 {
		t.Errorf("Expected default vol threshold 0.001, got %f", d.volThreshold)
	}
	if math.Abs(d.slopeThreshold-0.0001) > 1e-12 {
		t.Errorf("Expected default slope threshold 0.0001, got %f", d.slopeThreshold)
	}
}
