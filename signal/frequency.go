package signal

import "digit-trader-go/market"

// FrequencyExtractor 统计近期每个数字的出现次数，热门数字得分高。
// 过度出现与长期缺席指向相反的下注方向，缺席侧由 GapExtractor 负责。
type FrequencyExtractor struct {
	span int
}

// NewFrequencyExtractor 创建频率提取器；span<=0 时取 20。
func NewFrequencyExtractor(span int) *FrequencyExtractor {
	if span <= 0 {
		span = 20
	}
	return &FrequencyExtractor{span: span}
}

func (e *FrequencyExtractor) Name() string { return MethodFrequency }

func (e *FrequencyExtractor) MinSamples() int { return 15 }

func (e *FrequencyExtractor) Score(win *market.Window) Result {
	if win == nil || win.Len() < e.MinSamples() {
		return Neutral(MethodFrequency)
	}
	digits := win.LastDigits(e.span)

	scores := make(map[int]float64, 10)
	for d := 0; d < 10; d++ {
		scores[d] = 0
	}
	for _, d := range digits {
		scores[d]++
	}

	hot := ArgMax(scores)
	return Result{
		Method:      MethodFrequency,
		DigitScores: scores,
		Scalars: map[string]float64{
			ScalarHotDigit: float64(hot),
			ScalarHotCount: scores[hot],
		},
	}
}

// GapExtractor 给长期未出现的数字打高分：完全缺席记 8 分，
// 低频数字记 max(0, 5-次数)。
type GapExtractor struct {
	span int
}

// NewGapExtractor 创建缺口提取器；span<=0 时取 20。
func NewGapExtractor(span int) *GapExtractor {
	if span <= 0 {
		span = 20
	}
	return &GapExtractor{span: span}
}

func (e *GapExtractor) Name() string { return MethodGap }

func (e *GapExtractor) MinSamples() int { return 15 }

func (e *GapExtractor) Score(win *market.Window) Result {
	if win == nil || win.Len() < e.MinSamples() {
		return Neutral(MethodGap)
	}
	digits := win.LastDigits(e.span)

	counts := make(map[int]int, 10)
	for _, d := range digits {
		counts[d]++
	}

	scores := make(map[int]float64, 10)
	missing := 0.0
	for d := 0; d < 10; d++ {
		c := counts[d]
		if c == 0 {
			scores[d] = 8
			missing++
			continue
		}
		s := 5 - float64(c)
		if s < 0 {
			s = 0
		}
		scores[d] = s
	}

	return Result{
		Method:      MethodGap,
		DigitScores: scores,
		Scalars: map[string]float64{
			"missing_count": missing,
		},
	}
}
