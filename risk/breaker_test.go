package risk

import (
	"testing"
	"time"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	clock := newStepClock()
	b := NewLossBreaker(3, 30*time.Minute, clock)

	b.RecordLoss()
	b.RecordLoss()
	if b.IsOpen() {
		t.Fatal("breaker open after 2 losses, threshold is 3")
	}

	b.RecordLoss()
	if !b.IsOpen() {
		t.Fatal("breaker not open after 3 losses")
	}
	if got := b.GetState(); got != BreakerOpen {
		t.Fatalf("state = %v, want OPEN", got)
	}
}

func TestBreakerWinResetsCount(t *testing.T) {
	clock := newStepClock()
	b := NewLossBreaker(3, 30*time.Minute, clock)

	b.RecordLoss()
	b.RecordLoss()
	b.RecordWin()
	b.RecordLoss()
	b.RecordLoss()

	if b.IsOpen() {
		t.Fatal("breaker open, win should have reset the streak")
	}
	if got := b.ConsecutiveLosses(); got != 2 {
		t.Fatalf("ConsecutiveLosses = %d, want 2", got)
	}
}

func TestBreakerCooldownAutoClears(t *testing.T) {
	clock := newStepClock()
	b := NewLossBreaker(3, 30*time.Minute, clock)

	for i := 0; i < 3; i++ {
		b.RecordLoss()
	}
	if !b.IsOpen() {
		t.Fatal("breaker not open")
	}

	clock.advance(29 * time.Minute)
	if !b.IsOpen() {
		t.Fatal("breaker cleared before cooldown elapsed")
	}

	clock.advance(2 * time.Minute)
	if b.IsOpen() {
		t.Fatal("breaker still open after cooldown")
	}
	// 恢复后连败计数清零，需重新累计才会再次触发
	if got := b.ConsecutiveLosses(); got != 0 {
		t.Fatalf("ConsecutiveLosses = %d after auto clear, want 0", got)
	}
}

func TestBreakerLossDuringOpenExtendsCooldown(t *testing.T) {
	clock := newStepClock()
	b := NewLossBreaker(3, 30*time.Minute, clock)

	for i := 0; i < 3; i++ {
		b.RecordLoss()
	}

	clock.advance(10 * time.Minute)
	b.RecordLoss() // 未结注在熔断期间继续亏损

	clock.advance(25 * time.Minute) // 距首次打开 35 分钟，距最后亏损 25 分钟
	if !b.IsOpen() {
		t.Fatal("cooldown should extend from the last loss")
	}

	clock.advance(6 * time.Minute)
	if b.IsOpen() {
		t.Fatal("breaker still open after extended cooldown")
	}
}

func TestBreakerForcedOpenIgnoresCooldown(t *testing.T) {
	clock := newStepClock()
	b := NewLossBreaker(3, 30*time.Minute, clock)

	b.ForceOpen()
	if !b.IsOpen() {
		t.Fatal("breaker not open after ForceOpen")
	}

	clock.advance(24 * time.Hour)
	if !b.IsOpen() {
		t.Fatal("forced open must not auto clear")
	}

	b.ForceClose()
	if b.IsOpen() {
		t.Fatal("breaker open after ForceClose")
	}
	if got := b.ConsecutiveLosses(); got != 0 {
		t.Fatalf("ConsecutiveLosses = %d after ForceClose, want 0", got)
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := NewLossBreaker(0, 0, nil)
	if got := b.Threshold(); got != 3 {
		t.Fatalf("default threshold = %d, want 3", got)
	}
	if b.IsOpen() {
		t.Fatal("fresh breaker should be closed")
	}
}

func TestBreakerRemainingCooldown(t *testing.T) {
	clock := newStepClock()
	b := NewLossBreaker(2, 10*time.Minute, clock)

	if got := b.RemainingCooldown(); got != 0 {
		t.Fatalf("RemainingCooldown = %v on closed breaker, want 0", got)
	}

	b.RecordLoss()
	b.RecordLoss()
	clock.advance(4 * time.Minute)

	if got := b.RemainingCooldown(); got != 6*time.Minute {
		t.Fatalf("RemainingCooldown = %v, want 6m", got)
	}
}
