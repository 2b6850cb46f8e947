package signal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"digit-trader-go/signal"
)

// TestConsensusExtractor_FullAgreement 验证所有窗口同意时强度为 1
func TestConsensusExtractor_FullAgreement(t *testing.T) {
	// 30 个样本全是 7：10/20/50/100 裁剪后全部指向 7
	win := windowFromDigits(t, repeat(7, 30)...)

	e := signal.NewConsensusExtractor()
	res := e.Score(win)

	assert.Equal(t, signal.MethodConsensus, res.Method)
	assert.Equal(t, 7.0, res.Scalars[signal.ScalarConsensusDigit])
	assert.Equal(t, 1.0, res.Scalars[signal.ScalarConsensus])
	assert.Equal(t, 4.0, res.DigitScores[7], "all four scales vote for 7")
}

// TestConsensusExtractor_SplitAgreement 验证分歧窗口降低共识强度
func TestConsensusExtractor_SplitAgreement(t *testing.T) {
	// 前 40 个历史样本以 2 为主，近 10 个全是 9：
	// 10 窗口指向 9（10 票），30 窗口指向 2（15 比 10），
	// 50 窗口指向 2（30 比 10）。
	digits := make([]int, 0, 50)
	for i := 0; i < 40; i++ {
		if i%4 == 0 {
			digits = append(digits, 1)
		} else {
			digits = append(digits, 2)
		}
	}
	digits = append(digits, repeat(9, 10)...)
	win := windowFromDigits(t, digits...)

	e := signal.NewConsensusExtractor(10, 30, 50)
	res := e.Score(win)

	strength := res.Scalars[signal.ScalarConsensus]
	assert.InDelta(t, 2.0/3.0, strength, 1e-9, "two of three scales agree")
	assert.Equal(t, 2.0, res.Scalars[signal.ScalarConsensusDigit])
}

// TestConsensusExtractor_ClipsToAvailable 验证样本少于窗口尺度时按实际长度统计
func TestConsensusExtractor_ClipsToAvailable(t *testing.T) {
	win := windowFromDigits(t, repeat(3, 12)...)

	e := signal.NewConsensusExtractor()
	res := e.Score(win)

	// 12 个样本：10 与裁剪后的 20/50/100 全部指向 3
	assert.Equal(t, 3.0, res.Scalars[signal.ScalarConsensusDigit])
	assert.Equal(t, 1.0, res.Scalars[signal.ScalarConsensus])
}

// TestConsensusExtractor_ShortWindowNeutral 验证样本不足返回中性
func TestConsensusExtractor_ShortWindowNeutral(t *testing.T) {
	win := windowFromDigits(t, 1, 2, 3, 4)
	e := signal.NewConsensusExtractor()
	res := e.Score(win)
	for d := 0; d < 10; d++ {
		assert.InDelta(t, 0.1, res.DigitScores[d], 1e-9)
	}
	assert.Empty(t, res.Scalars)
}
