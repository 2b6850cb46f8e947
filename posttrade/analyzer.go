package posttrade

import (
	"sync"
	"time"

	"digit-trader-go/market"
)

// DecisionRecord 一笔决策从发出到结算的记录
type DecisionRecord struct {
	Digit      int
	Direction  market.Direction
	Confidence float64
	DecidedAt  time.Time
	Resolved   bool
	Won        bool
	Profit     float64
}

// CalibrationBucket 一个置信度区间的实际战绩
type CalibrationBucket struct {
	Floor  float64 // 区间下界，含
	Trades int
	Wins   int
}

// WinRate 该区间的实际胜率，无样本时为 0
func (b CalibrationBucket) WinRate() float64 {
	if b.Trades == 0 {
		return 0
	}
	return float64(b.Wins) / float64(b.Trades)
}

// AnalyzerStats 决策质量汇总
type AnalyzerStats struct {
	Decisions     int
	Resolved      int
	AvgConfidence float64
	Accuracy      float64 // 已结算决策的胜率
	Buckets       []CalibrationBucket
}

// bucketFloors 置信度分桶下界。产出置信度被限制在 95 以内，最高桶到顶即止。
var bucketFloors = []float64{55, 65, 75, 85}

// Analyzer 决策质量分析器。
// 跟踪每笔决策从发出到结算，按置信度区间汇总实际胜率，
// 用于检查报出的置信度与真实战绩是否背离。
type Analyzer struct {
	mu      sync.RWMutex
	records map[string]*DecisionRecord
}

// NewAnalyzer 创建决策质量分析器
func NewAnalyzer() *Analyzer {
	return &Analyzer{records: make(map[string]*DecisionRecord)}
}

// OnDecision 登记一笔刚发出的决策
func (a *Analyzer) OnDecision(decisionID string, digit int, direction market.Direction, confidence float64, decidedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records[decisionID] = &DecisionRecord{
		Digit:      digit,
		Direction:  direction,
		Confidence: confidence,
		DecidedAt:  decidedAt,
	}
}

// OnResolution 回填一笔决策的结算结果；未登记过的决策返回 false
func (a *Analyzer) OnResolution(decisionID string, profit float64, won bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	record, ok := a.records[decisionID]
	if !ok {
		return false
	}
	record.Resolved = true
	record.Won = won
	record.Profit = profit
	return true
}

// Stats 汇总全部记录
func (a *Analyzer) Stats() AnalyzerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AnalyzerStats{
		Decisions: len(a.records),
		Buckets:   make([]CalibrationBucket, len(bucketFloors)),
	}
	for i, floor := range bucketFloors {
		stats.Buckets[i].Floor = floor
	}
	if len(a.records) == 0 {
		return stats
	}

	var confidenceSum float64
	var resolvedWins int
	for _, record := range a.records {
		confidenceSum += record.Confidence
		if !record.Resolved {
			continue
		}
		stats.Resolved++
		if record.Won {
			resolvedWins++
		}
		if i := bucketIndex(record.Confidence); i >= 0 {
			stats.Buckets[i].Trades++
			if record.Won {
				stats.Buckets[i].Wins++
			}
		}
	}

	stats.AvgConfidence = confidenceSum / float64(len(a.records))
	if stats.Resolved > 0 {
		stats.Accuracy = float64(resolvedWins) / float64(stats.Resolved)
	}
	return stats
}

// bucketIndex 返回置信度所属分桶，低于最低下界时返回 -1
func bucketIndex(confidence float64) int {
	idx := -1
	for i, floor := range bucketFloors {
		if confidence >= floor {
			idx = i
		}
	}
	return idx
}

// CleanOldRecords 清理超龄记录，返回清理条数。
// 未结算的超龄记录视为永远不会回来的结算，一并清理。
func (a *Analyzer) CleanOldRecords(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, record := range a.records {
		if now.Sub(record.DecidedAt) > maxAge {
			delete(a.records, id)
			removed++
		}
	}
	return removed
}
