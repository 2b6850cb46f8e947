package posttrade

import (
	"math"
	"testing"

	"digit-trader-go/market"
)

func TestTrackerRecordBasics(t *testing.T) {
	tr := NewTracker(0)

	tr.Record(market.DirectionMatch, 0.95, true)
	tr.Record(market.DirectionMatch, 0.95, true)
	tr.Record(market.DirectionDiffer, -1.00, false)
	tr.Record(market.DirectionDiffer, 0.95, true)
	tr.Record(market.DirectionMatch, -1.00, false)

	s := tr.Summarize()
	if s.Trades != 5 || s.Wins != 3 || s.Losses != 2 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if math.Abs(s.WinRate-0.6) > 1e-9 {
		t.Fatalf("expected win rate 0.6, got %f", s.WinRate)
	}
	if math.Abs(s.TotalProfit-0.85) > 1e-9 {
		t.Fatalf("expected total profit 0.85, got %f", s.TotalProfit)
	}
}

func TestTrackerStreaks(t *testing.T) {
	tr := NewTracker(0)

	outcomes := []bool{true, true, false, false, false, true}
	for _, won := range outcomes {
		profit := 0.95
		if !won {
			profit = -1.00
		}
		tr.Record(market.DirectionMatch, profit, won)
	}

	s := tr.Summarize()
	if s.CurrentStreak != 1 {
		t.Fatalf("expected current streak 1, got %d", s.CurrentStreak)
	}
	if s.BestStreak != 2 {
		t.Fatalf("expected best streak 2, got %d", s.BestStreak)
	}
	if s.WorstStreak != -3 {
		t.Fatalf("expected worst streak -3, got %d", s.WorstStreak)
	}
}

func TestTrackerTrailingWindow(t *testing.T) {
	tr := NewTracker(3)

	tr.Record(market.DirectionMatch, 0.95, true)
	wr, n := tr.Trailing()
	if n != 1 || wr != 1.0 {
		t.Fatalf("after one win: rate %f trades %d", wr, n)
	}

	// 三连败把窗口内唯一的胜场挤出去
	for i := 0; i < 3; i++ {
		tr.Record(market.DirectionMatch, -1.00, false)
	}
	wr, n = tr.Trailing()
	if n != 3 {
		t.Fatalf("expected window full at 3, got %d", n)
	}
	if wr != 0 {
		t.Fatalf("expected rate 0 after three losses, got %f", wr)
	}
}

func TestTrackerPerDirection(t *testing.T) {
	tr := NewTracker(0)

	tr.Record(market.DirectionMatch, 0.95, true)
	tr.Record(market.DirectionDiffer, -1.00, false)
	tr.Record(market.DirectionDiffer, 0.95, true)

	s := tr.Summarize()
	if s.Match.Trades != 1 || s.Match.Wins != 1 {
		t.Fatalf("unexpected match stats: %+v", s.Match)
	}
	if s.Differ.Trades != 2 || s.Differ.Wins != 1 {
		t.Fatalf("unexpected differ stats: %+v", s.Differ)
	}
	if math.Abs(s.Differ.WinRate()-0.5) > 1e-9 {
		t.Fatalf("expected differ win rate 0.5, got %f", s.Differ.WinRate())
	}
	if math.Abs(s.Differ.Profit-(-0.05)) > 1e-9 {
		t.Fatalf("expected differ profit -0.05, got %f", s.Differ.Profit)
	}
}

func TestTrackerEmpty(t *testing.T) {
	tr := NewTracker(0)

	wr, n := tr.Trailing()
	if wr != 0 || n != 0 {
		t.Fatalf("empty tracker trailing should be zero, got %f %d", wr, n)
	}
	s := tr.Summarize()
	if s.Trades != 0 || s.WinRate != 0 || s.CurrentStreak != 0 {
		t.Fatalf("empty summary should be zero-valued: %+v", s)
	}
}
