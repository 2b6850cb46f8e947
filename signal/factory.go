package signal

import "fmt"

// Config 选择并调参提取器集合
type Config struct {
	Enabled          []string // 为空时启用默认集合
	FrequencySpan    int
	GapSpan          int
	ConsensusWindows []int
	PatternSpan      int
	Volatility       VolatilityConfig
	ModelPath        string // 为空时不启用模型提取器
	ModelSeqLen      int
}

// DefaultMethods 未配置时启用的提取器集合
var DefaultMethods = []string{
	MethodFrequency,
	MethodGap,
	MethodConsensus,
	MethodPattern,
	MethodVolatility,
}

// Factory 按配置实例化提取器
type Factory struct{}

// NewFactory 创建提取器工厂
func NewFactory() *Factory {
	return &Factory{}
}

// Build 按稳定顺序实例化配置的提取器。
// 模型提取器只在配置了模型路径时追加到末尾。
func (f *Factory) Build(cfg Config) ([]Extractor, error) {
	methods := cfg.Enabled
	if len(methods) == 0 {
		methods = DefaultMethods
	}

	out := make([]Extractor, 0, len(methods)+1)
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		if seen[m] {
			return nil, fmt.Errorf("duplicate extractor: %s", m)
		}
		seen[m] = true

		switch m {
		case MethodFrequency:
			out = append(out, NewFrequencyExtractor(cfg.FrequencySpan))
		case MethodGap:
			out = append(out, NewGapExtractor(cfg.GapSpan))
		case MethodConsensus:
			out = append(out, NewConsensusExtractor(cfg.ConsensusWindows...))
		case MethodPattern:
			out = append(out, NewPatternExtractor(cfg.PatternSpan))
		case MethodVolatility:
			out = append(out, NewVolatilityExtractor(cfg.Volatility))
		case MethodModel:
			// 显式点名模型却没给路径时在这里报错
			if cfg.ModelPath == "" {
				return nil, fmt.Errorf("extractor %s requires a model path", MethodModel)
			}
		default:
			return nil, fmt.Errorf("unknown extractor: %s", m)
		}
	}

	if cfg.ModelPath != "" {
		model, err := NewModelExtractor(cfg.ModelPath, cfg.ModelSeqLen)
		if err != nil {
			return nil, fmt.Errorf("load model extractor: %w", err)
		}
		out = append(out, model)
	}

	return out, nil
}
