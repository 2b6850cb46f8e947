package risk

import "time"

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 关闭状态，正常交易
	BreakerClosed BreakerState = iota
	// BreakerOpen 打开状态，拒绝所有交易
	BreakerOpen
)

// String 返回状态名称
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// LossBreaker 连败熔断器。
// 连续亏损达到阈值后打开，经过冷却期自动恢复并清零连败计数；
// 强制打开（外部灾难信号）只能手动关闭。
// 不加锁，由引擎串行访问。
type LossBreaker struct {
	threshold int
	cooldown  time.Duration
	clock     Clock

	consecutive int
	openUntil   time.Time // 零值表示未打开
	forced      bool
	trips       int64
	lastTrip    time.Time
}

// NewLossBreaker 创建连败熔断器；阈值默认3，冷却默认30分钟
func NewLossBreaker(threshold int, cooldown time.Duration, clock Clock) *LossBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}
	if clock == nil {
		clock = NowUTC
	}
	return &LossBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     clock,
	}
}

// RecordLoss 记录一次亏损；达到阈值时打开熔断器。
// 打开期间继续亏损会顺延冷却截止时间。
func (b *LossBreaker) RecordLoss() {
	b.consecutive++
	if b.consecutive >= b.threshold {
		now := b.clock.Now()
		if b.openUntil.IsZero() {
			b.trips++
		}
		b.openUntil = now.Add(b.cooldown)
		b.lastTrip = now
	}
}

// RecordWin 记录一次盈利，连败计数清零
func (b *LossBreaker) RecordWin() {
	b.consecutive = 0
}

// IsOpen 判断熔断器是否打开。
// 冷却期满时就地恢复：清空打开标记并重置连败计数，
// 恢复后需要重新累计连败才会再次触发。
func (b *LossBreaker) IsOpen() bool {
	if b.forced {
		return true
	}
	if b.openUntil.IsZero() {
		return false
	}
	if b.clock.Now().Before(b.openUntil) {
		return true
	}
	b.openUntil = time.Time{}
	b.consecutive = 0
	return false
}

// ForceOpen 强制打开，只能通过 ForceClose 恢复
func (b *LossBreaker) ForceOpen() {
	b.forced = true
	now := b.clock.Now()
	b.trips++
	b.lastTrip = now
}

// ForceClose 手动关闭并重置计数
func (b *LossBreaker) ForceClose() {
	b.forced = false
	b.openUntil = time.Time{}
	b.consecutive = 0
}

// Forced 返回是否处于强制打开状态
func (b *LossBreaker) Forced() bool { return b.forced }

// ConsecutiveLosses 返回当前连败次数
func (b *LossBreaker) ConsecutiveLosses() int { return b.consecutive }

// Threshold 返回触发阈值
func (b *LossBreaker) Threshold() int { return b.threshold }

// SetThreshold 调整触发阈值，供热更新使用；非法值被忽略
func (b *LossBreaker) SetThreshold(threshold int) {
	if threshold > 0 {
		b.threshold = threshold
	}
}

// OpenUntil 返回冷却截止时间，未打开时为零值
func (b *LossBreaker) OpenUntil() time.Time { return b.openUntil }

// RemainingCooldown 返回剩余冷却时长，未打开或强制打开时为0
func (b *LossBreaker) RemainingCooldown() time.Duration {
	if b.forced || b.openUntil.IsZero() {
		return 0
	}
	remaining := b.openUntil.Sub(b.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetState 返回当前状态
func (b *LossBreaker) GetState() BreakerState {
	if b.IsOpen() {
		return BreakerOpen
	}
	return BreakerClosed
}

// BreakerMetrics 熔断器指标
type BreakerMetrics struct {
	State             BreakerState
	ConsecutiveLosses int
	Threshold         int
	Trips             int64
	LastTrip          time.Time
	OpenUntil         time.Time
	Forced            bool
}

// GetMetrics 返回熔断器指标快照
func (b *LossBreaker) GetMetrics() BreakerMetrics {
	return BreakerMetrics{
		State:             b.GetState(),
		ConsecutiveLosses: b.consecutive,
		Threshold:         b.threshold,
		Trips:             b.trips,
		LastTrip:          b.lastTrip,
		OpenUntil:         b.openUntil,
		Forced:            b.forced,
	}
}
