package container

import (
	"fmt"
	"sync"
	"time"

	"digit-trader-go/infrastructure/alert"
	"digit-trader-go/internal/engine"
	"digit-trader-go/risk"
	"digit-trader-go/sizing"
)

// floatParam 归一化数值参数。HTTP 层解码 JSON 后整数也是 float64，
// 测试直接构造 map 时则可能是 int。
func floatParam(params map[string]interface{}, key string) (float64, bool) {
	switch n := params[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// riskApplier 把运行期风控调参转成引擎锁内的治理器变更。
// 缺席的键传零值，治理器的 setter 忽略非正参数，天然支持部分更新。
type riskApplier struct {
	engine *engine.Engine
}

func (a *riskApplier) ApplyParameters(params map[string]interface{}) error {
	differ, _ := floatParam(params, "min_confidence_differ")
	match, _ := floatParam(params, "min_confidence_match")
	daily, _ := floatParam(params, "daily_loss_limit_pct")
	weekly, _ := floatParam(params, "weekly_loss_limit_pct")
	monthly, _ := floatParam(params, "monthly_loss_limit_pct")
	threshold, _ := floatParam(params, "breaker_threshold")

	a.engine.UpdateGovernor(func(g *risk.Governor) {
		g.SetConfidenceFloors(differ, match)
		g.SetLossLimits(daily, weekly, monthly)
		g.SetBreakerThreshold(int(threshold))
	})
	return nil
}

// sizingApplier 维护当前生效的仓位配置。计算器不可变，
// 每次调参把收到的键合并进基线后构造新实例整体替换。
type sizingApplier struct {
	engine *engine.Engine

	mu      sync.Mutex
	current sizing.Config
}

func (a *sizingApplier) ApplyParameters(params map[string]interface{}) error {
	a.mu.Lock()
	cfg := a.current
	if v, ok := floatParam(params, "min_confidence"); ok {
		cfg.MinConfidence = v
	}
	if v, ok := floatParam(params, "win_prob_cap"); ok {
		cfg.WinProbCap = v
	}
	if v, ok := floatParam(params, "kelly_factor"); ok {
		cfg.KellyFactor = v
	}
	if v, ok := floatParam(params, "max_position_pct"); ok {
		cfg.MaxPositionPct = v
	}
	if v, ok := floatParam(params, "min_stake"); ok {
		cfg.MinStake = v
	}
	if v, ok := floatParam(params, "max_stake"); ok {
		cfg.MaxStake = v
	}
	a.current = cfg
	a.mu.Unlock()

	a.engine.SetSizer(sizing.New(cfg))
	return nil
}

// reset 以整份配置重置基线，配置文件重载时调用
func (a *sizingApplier) reset(cfg sizing.Config) {
	a.mu.Lock()
	a.current = cfg
	a.mu.Unlock()
	a.engine.SetSizer(sizing.New(cfg))
}

// alertApplier 运行期调整告警限流间隔
type alertApplier struct {
	alerts *alert.Manager
}

func (a *alertApplier) ApplyParameters(params map[string]interface{}) error {
	raw, ok := params["throttle_interval"].(string)
	if !ok {
		return fmt.Errorf("throttle_interval required")
	}
	interval, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse throttle_interval: %w", err)
	}
	a.alerts.SetThrottleInterval(interval)
	return nil
}
