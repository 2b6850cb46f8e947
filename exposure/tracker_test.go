package exposure

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTrackerOpenSettle(t *testing.T) {
	tr := NewTracker()
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	tr.Open(Wager{DecisionID: "a", Stake: decimal.NewFromFloat(1.50), OpenedAt: base})
	tr.Open(Wager{DecisionID: "b", Stake: decimal.NewFromFloat(2.00), OpenedAt: base.Add(time.Second)})

	if tr.Count() != 2 {
		t.Fatalf("expected 2 open, got %d", tr.Count())
	}
	if !tr.TotalStaked().Equal(decimal.NewFromFloat(3.50)) {
		t.Fatalf("expected staked 3.50, got %s", tr.TotalStaked())
	}

	w, ok := tr.Settle("a")
	if !ok {
		t.Fatalf("expected wager a to settle")
	}
	if !w.Stake.Equal(decimal.NewFromFloat(1.50)) {
		t.Fatalf("unexpected settled stake %s", w.Stake)
	}
	if tr.Count() != 1 {
		t.Fatalf("expected 1 open after settle, got %d", tr.Count())
	}
	if !tr.TotalStaked().Equal(decimal.NewFromFloat(2.00)) {
		t.Fatalf("expected staked 2.00, got %s", tr.TotalStaked())
	}

	if _, ok := tr.Settle("a"); ok {
		t.Fatalf("settling twice should report not found")
	}
}

func TestTrackerReplaceSameID(t *testing.T) {
	tr := NewTracker()
	now := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	tr.Open(Wager{DecisionID: "a", Stake: decimal.NewFromFloat(1.00), OpenedAt: now})
	tr.Open(Wager{DecisionID: "a", Stake: decimal.NewFromFloat(2.50), OpenedAt: now})

	if tr.Count() != 1 {
		t.Fatalf("expected 1 open, got %d", tr.Count())
	}
	if !tr.TotalStaked().Equal(decimal.NewFromFloat(2.50)) {
		t.Fatalf("expected staked 2.50 after replace, got %s", tr.TotalStaked())
	}
}

func TestTrackerSnapshotOrder(t *testing.T) {
	tr := NewTracker()
	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	tr.Open(Wager{DecisionID: "late", Stake: decimal.NewFromInt(1), OpenedAt: base.Add(2 * time.Second)})
	tr.Open(Wager{DecisionID: "early", Stake: decimal.NewFromInt(1), OpenedAt: base})
	tr.Open(Wager{DecisionID: "mid", Stake: decimal.NewFromInt(1), OpenedAt: base.Add(time.Second)})

	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 wagers, got %d", len(snap))
	}
	want := []string{"early", "mid", "late"}
	for i, id := range want {
		if snap[i].DecisionID != id {
			t.Fatalf("position %d: expected %s got %s", i, id, snap[i].DecisionID)
		}
	}
}
