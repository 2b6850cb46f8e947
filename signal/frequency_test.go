package signal_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digit-trader-go/market"
	"digit-trader-go/signal"
)

// windowFromDigits 构造一个窗口，使提取到的数字序列与给定序列一致。
// 价格固定在 1200.0x 附近，波动可忽略。
func windowFromDigits(t *testing.T, digits ...int) *market.Window {
	t.Helper()
	win := market.NewWindow(500)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, d := range digits {
		raw := fmt.Sprintf("1200.%d%d", i%10, d)
		tick, err := market.NewTick(raw, 2, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.Equal(t, d, tick.Digit)
		win.Append(tick)
	}
	return win
}

// repeat 生成 n 个相同数字。
func repeat(d, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = d
	}
	return out
}

// TestFrequencyExtractor_HotDigit 验证高频数字得分最高
func TestFrequencyExtractor_HotDigit(t *testing.T) {
	// 5 出现 14 次，其余零散
	digits := []int{5, 5, 5, 5, 5, 5, 2, 5, 5, 5, 1, 5, 3, 5, 5, 5, 4, 5, 5, 5}
	win := windowFromDigits(t, digits...)

	e := signal.NewFrequencyExtractor(20)
	res := e.Score(win)

	assert.Equal(t, signal.MethodFrequency, res.Method)
	assert.Equal(t, 14.0, res.DigitScores[5], "digit 5 appears 14 times")
	assert.Equal(t, 1.0, res.DigitScores[2])
	assert.Equal(t, 0.0, res.DigitScores[9], "absent digit scores zero")
	assert.Equal(t, 5.0, res.Scalars[signal.ScalarHotDigit])
	assert.Equal(t, 14.0, res.Scalars[signal.ScalarHotCount])
}

// TestFrequencyExtractor_ShortWindowNeutral 验证样本不足时退化为中性
func TestFrequencyExtractor_ShortWindowNeutral(t *testing.T) {
	win := windowFromDigits(t, 1, 2, 3)

	e := signal.NewFrequencyExtractor(20)
	res := e.Score(win)

	for d := 0; d < 10; d++ {
		assert.InDelta(t, 0.1, res.DigitScores[d], 1e-9, "neutral result is uniform")
	}
}

// TestFrequencyExtractor_NilWindow 验证 nil 窗口不会 panic
func TestFrequencyExtractor_NilWindow(t *testing.T) {
	e := signal.NewFrequencyExtractor(0)
	assert.NotPanics(t, func() {
		res := e.Score(nil)
		assert.Equal(t, signal.MethodFrequency, res.Method)
	})
}

// TestGapExtractor_MissingDigits 验证缺席数字得到最高分
func TestGapExtractor_MissingDigits(t *testing.T) {
	// 20 个样本里没有 7 和 9；0 出现 6 次
	digits := []int{0, 0, 0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 8, 8}
	win := windowFromDigits(t, digits...)

	e := signal.NewGapExtractor(20)
	res := e.Score(win)

	assert.Equal(t, 8.0, res.DigitScores[7], "missing digit scores 8")
	assert.Equal(t, 8.0, res.DigitScores[9], "missing digit scores 8")
	assert.Equal(t, 3.0, res.DigitScores[1], "twice-seen digit scores 5-2")
	assert.Equal(t, 0.0, res.DigitScores[0], "saturated digit floors at zero")
	assert.Equal(t, 2.0, res.Scalars["missing_count"])
}

// TestGapExtractor_ShortWindowNeutral 验证样本不足时退化为中性
func TestGapExtractor_ShortWindowNeutral(t *testing.T) {
	win := windowFromDigits(t, 1, 2)
	e := signal.NewGapExtractor(0)
	res := e.Score(win)
	for d := 0; d < 10; d++ {
		assert.InDelta(t, 0.1, res.DigitScores[d], 1e-9)
	}
}
