// Package posttrade 汇总已结算交易的战绩，
// 为仓位倍率和状态面板提供滚动胜率、连胜连败与分方向统计。
package posttrade

import (
	"sync"

	"digit-trader-go/market"
)

// DefaultTrailingSpan 滚动胜率窗口的默认长度
const DefaultTrailingSpan = 10

// DirectionStats 单一方向的累计战绩
type DirectionStats struct {
	Trades int
	Wins   int
	Profit float64
}

// WinRate 该方向的胜率，无交易时为 0
func (s DirectionStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// Summary 一次完整的统计快照
type Summary struct {
	Trades          int
	Wins            int
	Losses          int
	WinRate         float64
	TotalProfit     float64
	CurrentStreak   int // 正数连胜，负数连败
	BestStreak      int
	WorstStreak     int
	TrailingWinRate float64
	TrailingTrades  int
	Match           DirectionStats
	Differ          DirectionStats
}

// Tracker 已结算交易的统计器
type Tracker struct {
	mu sync.RWMutex

	trades int
	wins   int
	profit float64

	streak      int
	bestStreak  int
	worstStreak int

	recent []bool
	head   int
	filled int

	match  DirectionStats
	differ DirectionStats
}

// NewTracker 创建统计器，trailingSpan 非正时使用默认窗口
func NewTracker(trailingSpan int) *Tracker {
	if trailingSpan <= 0 {
		trailingSpan = DefaultTrailingSpan
	}
	return &Tracker{recent: make([]bool, trailingSpan)}
}

// Record 记录一笔已结算交易
func (t *Tracker) Record(direction market.Direction, profit float64, won bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trades++
	t.profit += profit

	if won {
		t.wins++
		if t.streak > 0 {
			t.streak++
		} else {
			t.streak = 1
		}
		if t.streak > t.bestStreak {
			t.bestStreak = t.streak
		}
	} else {
		if t.streak < 0 {
			t.streak--
		} else {
			t.streak = -1
		}
		if t.streak < t.worstStreak {
			t.worstStreak = t.streak
		}
	}

	t.recent[t.head] = won
	t.head = (t.head + 1) % len(t.recent)
	if t.filled < len(t.recent) {
		t.filled++
	}

	switch direction {
	case market.DirectionMatch:
		t.match.Trades++
		t.match.Profit += profit
		if won {
			t.match.Wins++
		}
	case market.DirectionDiffer:
		t.differ.Trades++
		t.differ.Profit += profit
		if won {
			t.differ.Wins++
		}
	}
}

// Trailing 返回滚动窗口内的胜率与样本数
func (t *Tracker) Trailing() (winRate float64, trades int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trailingLocked()
}

func (t *Tracker) trailingLocked() (float64, int) {
	if t.filled == 0 {
		return 0, 0
	}
	wins := 0
	for i := 0; i < t.filled; i++ {
		if t.recent[i] {
			wins++
		}
	}
	return float64(wins) / float64(t.filled), t.filled
}

// Streak 返回当前连胜连败计数，正数连胜负数连败
func (t *Tracker) Streak() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.streak
}

// Summarize 返回完整统计快照
func (t *Tracker) Summarize() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		Trades:        t.trades,
		Wins:          t.wins,
		Losses:        t.trades - t.wins,
		TotalProfit:   t.profit,
		CurrentStreak: t.streak,
		BestStreak:    t.bestStreak,
		WorstStreak:   t.worstStreak,
		Match:         t.match,
		Differ:        t.differ,
	}
	if t.trades > 0 {
		s.WinRate = float64(t.wins) / float64(t.trades)
	}
	s.TrailingWinRate, s.TrailingTrades = t.trailingLocked()
	return s
}
