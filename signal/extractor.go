// Package signal 实现从滚动窗口提取预测信号的各类提取器。
// 每个提取器把窗口变换为 digit->score 分布或若干命名标量；
// 样本不足时返回各自文档化的中性结果，绝不让失败传出流水线。
package signal

import "digit-trader-go/market"

// 提取器方法名，注册与权重均以此为键。
const (
	MethodFrequency  = "frequency"
	MethodGap        = "gap"
	MethodConsensus  = "consensus"
	MethodPattern    = "pattern"
	MethodVolatility = "volatility"
	MethodModel      = "model"
)

// 标量信号键。
const (
	ScalarVolatility     = "volatility"         // 最近价格标准差
	ScalarMomentum       = "momentum"           // 近 5 价动量
	ScalarFavorable      = "favorable"          // 1 表示波动率处于可交易区间
	ScalarRegime         = "regime"             // market.Regime 的数值编码
	ScalarSession        = "session"            // market.Session 的数值编码
	ScalarSessionBias    = "session_bias"       // 会话偏好数字在近 20 个中的占比
	ScalarConsensus      = "consensus_strength" // 同意主流数字的窗口占比 [0,1]
	ScalarConsensusDigit = "consensus_digit"    // 多窗口共识数字
	ScalarHotDigit       = "hot_digit"          // 频率最高的数字
	ScalarHotCount       = "hot_count"          // 其出现次数
)

// Result 是一次信号计算的产物。DigitScores 为空表示该提取器
// 只输出标量，不参与加权投票。
type Result struct {
	Method      string
	DigitScores map[int]float64
	Scalars     map[string]float64
}

// Extractor 是所有信号提取器的统一能力接口。
type Extractor interface {
	// Name 返回方法名，作为权重与指标的稳定键。
	Name() string
	// MinSamples 返回产生非中性结果所需的最少样本数。
	MinSamples() int
	// Score 对窗口做一次只读计算。实现必须自行处理样本不足，
	// 返回 Neutral 而不是 panic。
	Score(win *market.Window) Result
}

// Neutral 返回 method 的中性结果：均匀分布、无标量，
// 在归一化投票中不表达任何偏好。
func Neutral(method string) Result {
	scores := make(map[int]float64, 10)
	for d := 0; d < 10; d++ {
		scores[d] = 0.1
	}
	return Result{
		Method:      method,
		DigitScores: scores,
		Scalars:     map[string]float64{},
	}
}

// NeutralScalar 返回纯标量提取器的中性结果（无分布、无标量）。
func NeutralScalar(method string) Result {
	return Result{
		Method:  method,
		Scalars: map[string]float64{},
	}
}

// ArgMax 返回得分最高的数字；并列时取最小数字，保证确定性。
func ArgMax(scores map[int]float64) int {
	best, bestScore := 0, -1.0
	for d := 0; d <= 9; d++ {
		if s, ok := scores[d]; ok && s > bestScore {
			best, bestScore = d, s
		}
	}
	return best
}
