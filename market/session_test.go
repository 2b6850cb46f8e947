package market

import (
	"testing"
	"time"
)

func TestSessionAt_Boundaries(t *testing.T) {
	cases := []struct {
		hour int
		want Session
	}{
		{0, SessionAsian},
		{7, SessionAsian},
		{8, SessionEuropean},
		{15, SessionEuropean},
		{16, SessionAmerican},
		{23, SessionAmerican},
	}
	for _, c := range cases {
		ts := time.Date(2025, 3, 10, c.hour, 30, 0, 0, time.UTC)
		if got := SessionAt(ts); got != c.want {
			t.Errorf("SessionAt(hour=%d): expected %s, got %s", c.hour, c.want, got)
		}
	}
}

func TestSessionAt_ConvertsToUTC(t *testing.T) {
	// 18:00 in UTC+3 is 15:00 UTC, still european.
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2025, 3, 10, 18, 0, 0, 0, loc)
	if got := SessionAt(ts); got != SessionEuropean {
		t.Errorf("Expected european for 15:00 UTC, got %s", got)
	}
}

func TestSession_Favors(t *testing.T) {
	if !SessionAsian.Favors(0) || !SessionAsian.Favors(9) {
		t.Error("Asian session should favor 0 and 9")
	}
	if SessionAsian.Favors(5) {
		t.Error("Asian session should not favor 5")
	}
	if !SessionEuropean.Favors(3) {
		t.Error("European session should favor 3")
	}
	if !SessionAmerican.Favors(8) {
		t.Error("American session should favor 8")
	}
}

func TestSession_BiasDigitsIsCopy(t *testing.T) {
	digits := SessionAsian.BiasDigits()
	digits[0] = 5
	if sessionBias[SessionAsian][0] == 5 {
		t.Error("BiasDigits must return a copy")
	}
}
