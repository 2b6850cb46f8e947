// Package exposure 跟踪未结注单敞口。
package exposure

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Wager 一笔已提交但尚未结算的注单
type Wager struct {
	DecisionID string
	Stake      decimal.Decimal
	OpenedAt   time.Time
}

// Tracker 维护未结注单集合。
// 风控的并发注数检查与状态面板都从这里读数，下单与结算路径写入。
type Tracker struct {
	mu     sync.RWMutex
	open   map[string]Wager
	staked decimal.Decimal
}

// NewTracker 创建空的敞口跟踪器
func NewTracker() *Tracker {
	return &Tracker{
		open:   make(map[string]Wager),
		staked: decimal.Zero,
	}
}

// Open 登记一笔新注单。
// 同一决策 ID 重复登记时以最新注额为准，总敞口不会被重复累加。
func (t *Tracker) Open(w Wager) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.open[w.DecisionID]; ok {
		t.staked = t.staked.Sub(old.Stake)
	}
	t.open[w.DecisionID] = w
	t.staked = t.staked.Add(w.Stake)
}

// Settle 移除一笔注单并返回其登记内容；未登记过时第二个返回值为 false
func (t *Tracker) Settle(decisionID string) (Wager, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.open[decisionID]
	if !ok {
		return Wager{}, false
	}
	delete(t.open, decisionID)
	t.staked = t.staked.Sub(w.Stake)
	return w, true
}

// Count 返回当前未结注数
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.open)
}

// TotalStaked 返回未结注单的注额合计
func (t *Tracker) TotalStaked() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.staked
}

// Snapshot 返回按开仓时间排序的未结注单副本
func (t *Tracker) Snapshot() []Wager {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Wager, 0, len(t.open))
	for _, w := range t.open {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].DecisionID < out[j].DecisionID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}
