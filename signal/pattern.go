package signal

import "digit-trader-go/market"

// PatternExtractor 在近端数字序列里找三类结构并给“延续数字”加分：
//   - 重复子序列（长度 2-4）：以窗口尾部为模板向前找最近一次出现，
//     其后继数字得分 +长度；
//   - 交替结构 ABAB：延续数字 +2；
//   - 近 5 个内的冷热连击：出现 >=3 次的数字 +3，完全缺席的数字 +2。
type PatternExtractor struct {
	span int
}

// NewPatternExtractor 创建模式提取器；span<=0 时取 30。
func NewPatternExtractor(span int) *PatternExtractor {
	if span <= 0 {
		span = 30
	}
	return &PatternExtractor{span: span}
}

func (e *PatternExtractor) Name() string { return MethodPattern }

func (e *PatternExtractor) MinSamples() int { return 10 }

func (e *PatternExtractor) Score(win *market.Window) Result {
	if win == nil || win.Len() < e.MinSamples() {
		return Neutral(MethodPattern)
	}
	digits := win.LastDigits(e.span)

	scores := make(map[int]float64, 10)
	for d := 0; d < 10; d++ {
		scores[d] = 0
	}
	found := 0.0

	if e.scoreRepeats(digits, scores) {
		found++
	}
	if e.scoreAlternating(digits, scores) {
		found++
	}
	if e.scoreStreaks(digits, scores) {
		found++
	}

	return Result{
		Method:      MethodPattern,
		DigitScores: scores,
		Scalars: map[string]float64{
			"patterns_found": found,
		},
	}
}

// scoreRepeats 以窗口尾部 L 个数字为模板（L=2..4），向前扫描最近一次
// 相同子序列，其后继数字记 +L。每个长度只取最近的一次确认。
func (e *PatternExtractor) scoreRepeats(digits []int, scores map[int]float64) bool {
	n := len(digits)
	hit := false
	for l := 2; l <= 4; l++ {
		if n < l+1 {
			continue
		}
		tail := digits[n-l:]
		for start := n - l - 1; start >= 0; start-- {
			if !equalRun(digits[start:start+l], tail) {
				continue
			}
			scores[digits[start+l]] += float64(l)
			hit = true
			break
		}
	}
	return hit
}

// scoreAlternating 识别尾部 ABAB 交替，给延续数字 A 记 +2。
func (e *PatternExtractor) scoreAlternating(digits []int, scores map[int]float64) bool {
	n := len(digits)
	if n < 4 {
		return false
	}
	a, b := digits[n-4], digits[n-3]
	if a == b {
		return false
	}
	if digits[n-2] == a && digits[n-1] == b {
		scores[a] += 2
		return true
	}
	return false
}

// scoreStreaks 看最近 5 个：出现 >=3 次的数字可能延续（+3），
// 完全缺席的数字按“该出现了”记 +2。
func (e *PatternExtractor) scoreStreaks(digits []int, scores map[int]float64) bool {
	n := len(digits)
	if n < 5 {
		return false
	}
	counts := make(map[int]int, 10)
	for _, d := range digits[n-5:] {
		counts[d]++
	}
	hit := false
	for d := 0; d < 10; d++ {
		switch c := counts[d]; {
		case c >= 3:
			scores[d] += 3
			hit = true
		case c == 0:
			scores[d] += 2
		}
	}
	return hit
}

func equalRun(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
