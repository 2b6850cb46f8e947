package signal

import "digit-trader-go/market"

// ConsensusExtractor 在多个窗口尺度上分别求频率领先者，
// 共识强度 = 同意主流数字的窗口占比。窗口不足时只统计可用尺度。
type ConsensusExtractor struct {
	windows []int
}

// NewConsensusExtractor 创建多窗口共识提取器；
// 不指定尺度时使用 10/20/50/100。
func NewConsensusExtractor(windows ...int) *ConsensusExtractor {
	if len(windows) == 0 {
		windows = []int{10, 20, 50, 100}
	}
	return &ConsensusExtractor{windows: windows}
}

func (e *ConsensusExtractor) Name() string { return MethodConsensus }

func (e *ConsensusExtractor) MinSamples() int { return 10 }

func (e *ConsensusExtractor) Score(win *market.Window) Result {
	if win == nil || win.Len() < e.MinSamples() {
		return Neutral(MethodConsensus)
	}

	// 每个可用尺度投一票给自己的领先数字。
	votes := make(map[int]float64, 10)
	computed := 0
	for _, size := range e.windows {
		digits := win.LastDigits(size)
		if len(digits) == 0 {
			continue
		}
		counts := make(map[int]float64, 10)
		for _, d := range digits {
			counts[d]++
		}
		votes[ArgMax(counts)]++
		computed++
	}
	if computed == 0 {
		return Neutral(MethodConsensus)
	}

	leader := ArgMax(votes)
	strength := votes[leader] / float64(computed)

	return Result{
		Method:      MethodConsensus,
		DigitScores: votes,
		Scalars: map[string]float64{
			ScalarConsensus:      strength,
			ScalarConsensusDigit: float64(leader),
		},
	}
}
