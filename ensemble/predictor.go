package ensemble

import (
	"fmt"

	"digit-trader-go/market"
	"digit-trader-go/signal"
)

// 置信度元调整参数。各项均有界，叠加后整体再截断到配置上限。
const (
	agreementScale         = 20.0 // 共识强度 [0,1] 的放大系数
	frequencyConsensusAdd  = 15.0 // 频率热门与多窗口共识一致
	favorableVolatilityAdd = 10.0 // 波动率处于可交易区间
	sessionBiasAdd         = 12.0 // 会话偏好显著且包含预测数字
	sessionBiasFloor       = 0.4  // 会话偏好占比的显著门槛
	accuracyShiftMax       = 10.0 // 滚动准确率带来的最大增减
	regimeTrendingAdd      = 5.0
	regimeRangingAdd       = 8.0
	regimeVolatileSub      = -10.0
)

// DefaultConfidenceCap 置信度默认上限，永不允许到 100
const DefaultConfidenceCap = 95.0

// MetaAdjustments 置信度各元调整项的明细
type MetaAdjustments struct {
	Agreement          float64 // 多窗口共识强度加成
	FrequencyConsensus float64 // 频率与共识领先数字一致加成
	FavorableVol       float64 // 波动率区间加成
	SessionBias        float64 // 会话数字偏好加成
	TrailingAccuracy   float64 // 滚动准确率增减
	Regime             float64 // 市场状态增减
}

// Total 返回各元调整项之和
func (m MetaAdjustments) Total() float64 {
	return m.Agreement + m.FrequencyConsensus + m.FavorableVol +
		m.SessionBias + m.TrailingAccuracy + m.Regime
}

// Prediction 一次融合预测的完整产物
type Prediction struct {
	Digit         int             // 预测数字
	Confidence    float64         // 置信度 [0, 上限]
	Probabilities [10]float64     // 归一化数字分布，和恒为1
	Votes         map[string]int  // 各参与投票提取器的数字选择
	Signals       []signal.Result // 本次参与的全部信号结果
	Meta          MetaAdjustments // 置信度调整明细
}

// Config 预测器配置
type Config struct {
	ConfidenceCap float64 // 置信度上限，<=0 时使用 95
	AccuracySpan  int     // 滚动准确率窗口，<=0 时使用 20
}

// Predictor 加权投票预测器
// 持有提取器集合与权重存储；不加锁，由引擎串行访问。
type Predictor struct {
	extractors []signal.Extractor
	weights    *WeightStore
	cfg        Config
}

// NewPredictor 创建预测器，初始权重为均匀分布
func NewPredictor(extractors []signal.Extractor, cfg Config) *Predictor {
	if cfg.ConfidenceCap <= 0 {
		cfg.ConfidenceCap = DefaultConfidenceCap
	}
	if cfg.AccuracySpan <= 0 {
		cfg.AccuracySpan = DefaultAccuracySpan
	}

	methods := make([]string, 0, len(extractors))
	for _, e := range extractors {
		methods = append(methods, e.Name())
	}

	return &Predictor{
		extractors: extractors,
		weights:    NewWeightStore(methods, cfg.AccuracySpan),
		cfg:        cfg,
	}
}

// Run 依次执行全部提取器。单个提取器 panic 不会中断流水线：
// 其结果被替换为中性默认值，并以错误形式返回给调用方记录日志。
func (p *Predictor) Run(win *market.Window) ([]signal.Result, []error) {
	results := make([]signal.Result, 0, len(p.extractors))
	var errs []error
	for _, ext := range p.extractors {
		res, err := safeScore(ext, win)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, res)
	}
	return results, errs
}

// safeScore 执行单个提取器并兜底其 panic
func safeScore(ext signal.Extractor, win *market.Window) (res signal.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = signal.Neutral(ext.Name())
			err = fmt.Errorf("extractor %s panicked: %v", ext.Name(), r)
		}
	}()
	return ext.Score(win), nil
}

// Predict 将信号结果融合为一次预测。
// 各提取器的数字得分先归一化再乘以其权重，累加成10槽向量；
// 取最大槽为预测数字，并列取最小数字；置信度为最大槽占总权重质量的
// 份额放大到 0-100，再叠加元调整并截断到上限。
func (p *Predictor) Predict(win *market.Window, results []signal.Result) Prediction {
	pred := Prediction{
		Votes:   make(map[string]int),
		Signals: results,
	}

	var vector [10]float64
	for _, res := range results {
		if len(res.DigitScores) == 0 {
			continue
		}
		total := 0.0
		for _, v := range res.DigitScores {
			if v > 0 {
				total += v
			}
		}
		if total <= 0 {
			continue
		}

		pred.Votes[res.Method] = signal.ArgMax(res.DigitScores)

		weight := p.weights.Weight(res.Method)
		if weight <= 0 {
			continue
		}
		for d, v := range res.DigitScores {
			if d >= 0 && d <= 9 && v > 0 {
				vector[d] += weight * (v / total)
			}
		}
	}

	mass := 0.0
	for _, v := range vector {
		mass += v
	}
	if mass <= 0 {
		// 无任何有效投票，给出零置信度的均匀分布
		for d := range pred.Probabilities {
			pred.Probabilities[d] = 0.1
		}
		return pred
	}

	best := 0
	for d := 0; d < 10; d++ {
		pred.Probabilities[d] = vector[d] / mass
		if pred.Probabilities[d] > pred.Probabilities[best] {
			best = d
		}
	}
	pred.Digit = best

	pred.Meta = p.metaAdjust(win, results, best)
	pred.Confidence = clampConfidence(pred.Probabilities[best]*100+pred.Meta.Total(), p.cfg.ConfidenceCap)
	return pred
}

// ResolveOutcome 将一笔交易的结算结果回传给权重存储
func (p *Predictor) ResolveOutcome(votes map[string]int, digit int, direction market.Direction, won bool) {
	p.weights.Record(votes, digit, direction, won)
}

// Weights 返回当前各提取器权重的副本
func (p *Predictor) Weights() map[string]float64 {
	return p.weights.Weights()
}

// Accuracy 返回指定提取器的滚动准确率
func (p *Predictor) Accuracy(method string) (float64, bool) {
	return p.weights.Accuracy(method)
}

// metaAdjust 计算置信度的各元调整项
func (p *Predictor) metaAdjust(win *market.Window, results []signal.Result, digit int) MetaAdjustments {
	var meta MetaAdjustments

	if strength, ok := scalarOf(results, signal.ScalarConsensus); ok {
		meta.Agreement = strength * agreementScale
	}

	hot, hasHot := scalarOf(results, signal.ScalarHotDigit)
	consensusDigit, hasConsensus := scalarOf(results, signal.ScalarConsensusDigit)
	if hasHot && hasConsensus && int(hot) == int(consensusDigit) {
		meta.FrequencyConsensus = frequencyConsensusAdd
	}

	if favorable, ok := scalarOf(results, signal.ScalarFavorable); ok && favorable == 1 {
		meta.FavorableVol = favorableVolatilityAdd
	}

	if share, ok := scalarOf(results, signal.ScalarSessionBias); ok && share > sessionBiasFloor && win != nil {
		if last, hasLast := win.Last(); hasLast && market.SessionAt(last.At).Favors(digit) {
			meta.SessionBias = sessionBiasAdd
		}
	}

	if accuracy, ok := p.weights.MeanAccuracy(); ok {
		shift := (accuracy - 0.5) * 2 * accuracyShiftMax
		if shift > accuracyShiftMax {
			shift = accuracyShiftMax
		}
		if shift < -accuracyShiftMax {
			shift = -accuracyShiftMax
		}
		meta.TrailingAccuracy = shift
	}

	if regime, ok := scalarOf(results, signal.ScalarRegime); ok {
		switch market.Regime(int(regime)) {
		case market.RegimeTrending:
			meta.Regime = regimeTrendingAdd
		case market.RegimeRanging:
			meta.Regime = regimeRangingAdd
		case market.RegimeVolatile:
			meta.Regime = regimeVolatileSub
		}
	}

	return meta
}

// scalarOf 在结果集中查找第一个携带指定标量的信号
func scalarOf(results []signal.Result, key string) (float64, bool) {
	for _, res := range results {
		if v, ok := res.Scalars[key]; ok {
			return v, true
		}
	}
	return 0, false
}

// clampConfidence 截断置信度到 [0, ceiling]
func clampConfidence(v, ceiling float64) float64 {
	if v < 0 {
		return 0
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
