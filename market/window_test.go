package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mkTick(t *testing.T, raw string, at time.Time) Tick {
	t.Helper()
	tick, err := NewTick(raw, 2, at)
	if err != nil {
		t.Fatalf("NewTick(%q): %v", raw, err)
	}
	return tick
}

func TestWindow_AppendAndLen(t *testing.T) {
	w := NewWindow(5)
	now := time.Now()

	if w.Len() != 0 {
		t.Fatalf("Expected empty window, got %d", w.Len())
	}

	for i := 0; i < 3; i++ {
		w.Append(mkTick(t, "1200.01", now.Add(time.Duration(i)*time.Second)))
	}

	if w.Len() != 3 {
		t.Errorf("Expected 3 samples, got %d", w.Len())
	}
	if w.Cap() != 5 {
		t.Errorf("Expected capacity 5, got %d", w.Cap())
	}
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	now := time.Now()

	raws := []string{"1200.01", "1200.02", "1200.03", "1200.04", "1200.05"}
	for i, raw := range raws {
		w.Append(mkTick(t, raw, now.Add(time.Duration(i)*time.Second)))
	}

	if w.Len() != 3 {
		t.Fatalf("Expected window capped at 3, got %d", w.Len())
	}

	digits := w.Digits()
	want := []int{3, 4, 5}
	for i, d := range want {
		if digits[i] != d {
			t.Errorf("digits[%d]: expected %d, got %d", i, d, digits[i])
		}
	}
}

func TestWindow_SnapshotIsCopy(t *testing.T) {
	w := NewWindow(4)
	now := time.Now()
	w.Append(mkTick(t, "1200.07", now))
	w.Append(mkTick(t, "1200.08", now.Add(time.Second)))

	digits := w.Digits()
	digits[0] = 99
	again := w.Digits()
	if again[0] != 7 {
		t.Errorf("Snapshot mutation leaked into window: got %d", again[0])
	}

	prices := w.Prices()
	prices[0] = -1
	if w.Prices()[0] == -1 {
		t.Error("Price snapshot mutation leaked into window")
	}
}

func TestWindow_LastN(t *testing.T) {
	w := NewWindow(10)
	now := time.Now()
	for i := 0; i < 6; i++ {
		raw := decimal.NewFromFloat(1200.0).Add(decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(100)))
		tick, err := NewTickFromDecimal(raw, 2, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("NewTickFromDecimal: %v", err)
		}
		w.Append(tick)
	}

	last3 := w.LastDigits(3)
	want := []int{3, 4, 5}
	if len(last3) != 3 {
		t.Fatalf("Expected 3 digits, got %d", len(last3))
	}
	for i, d := range want {
		if last3[i] != d {
			t.Errorf("last3[%d]: expected %d, got %d", i, d, last3[i])
		}
	}

	// Asking for more than available returns everything in order
	all := w.LastDigits(100)
	if len(all) != 6 {
		t.Errorf("Expected 6 digits, got %d", len(all))
	}
	if got := w.LastDigits(0); got != nil {
		t.Errorf("Expected nil for n=0, got %v", got)
	}
}

func TestWindow_Last(t *testing.T) {
	w := NewWindow(3)
	if _, ok := w.Last(); ok {
		t.Error("Expected no last tick on empty window")
	}

	now := time.Now()
	w.Append(mkTick(t, "1200.04", now))
	w.Append(mkTick(t, "1200.09", now.Add(time.Second)))

	last, ok := w.Last()
	if !ok {
		t.Fatal("Expected last tick")
	}
	if last.Digit != 9 {
		t.Errorf("Expected last digit 9, got %d", last.Digit)
	}
}

func TestWindow_WrapAroundKeepsOrder(t *testing.T) {
	w := NewWindow(4)
	now := time.Now()
	for i := 0; i < 11; i++ {
		raw := decimal.NewFromInt(1200).Add(decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(100)))
		tick, err := NewTickFromDecimal(raw, 2, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("NewTickFromDecimal: %v", err)
		}
		w.Append(tick)
	}

	// Last four appended digits were 7,8,9,0
	digits := w.Digits()
	want := []int{7, 8, 9, 0}
	for i, d := range want {
		if digits[i] != d {
			t.Errorf("digits[%d]: expected %d, got %d", i, d, digits[i])
		}
	}
}
