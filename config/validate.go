package config

import (
	"fmt"

	"digit-trader-go/market"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalidf(format string, args ...any) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present and numeric knobs are sane.
// Zero values pass wherever the consuming package substitutes a default.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}

	if cfg.Gateway.Symbol == "" {
		return ErrInvalid("gateway.symbol is required")
	}
	if cfg.Gateway.PipDigits < 0 {
		return ErrInvalid("gateway.pipDigits must be >= 0")
	}
	if cfg.Gateway.RateLimit < 0 || cfg.Gateway.RateBurst < 0 {
		return ErrInvalid("gateway.rateLimit/rateBurst must be >= 0")
	}

	switch cfg.Trade.Mode {
	case "paper":
		if cfg.Trade.InitialBalance <= 0 {
			return ErrInvalid("trade.initialBalance must be > 0 in paper mode")
		}
	case "live":
		if cfg.Gateway.Token == "" {
			return ErrInvalid("trade.mode live requires gateway.token (or DERIV_TOKEN)")
		}
	default:
		return invalidf("trade.mode must be paper or live, got %q", cfg.Trade.Mode)
	}
	if cfg.Trade.PayoutRatio < 0 {
		return ErrInvalid("trade.payoutRatio must be >= 0")
	}
	if cfg.Trade.DurationTicks < 0 || cfg.Trade.DurationTicks > 10 {
		return ErrInvalid("trade.durationTicks must be within [0,10]")
	}

	if cfg.Engine.Strategy != "" {
		if _, err := market.ParseDirection(cfg.Engine.Strategy); err != nil {
			return invalidf("engine.strategy: %v", err)
		}
	}
	if cfg.Engine.WindowCapacity < 0 || cfg.Engine.VolatilitySpan < 0 || cfg.Engine.MaxPending < 0 {
		return ErrInvalid("engine window/span/pending sizes must be >= 0")
	}
	if cfg.Engine.SessionStopLoss < 0 || cfg.Engine.SessionTakeProfit < 0 {
		return ErrInvalid("engine.sessionStopLoss/sessionTakeProfit must be >= 0")
	}

	if cfg.Signal.FrequencySpan < 0 || cfg.Signal.GapSpan < 0 || cfg.Signal.PatternSpan < 0 {
		return ErrInvalid("signal spans must be >= 0")
	}
	for _, w := range cfg.Signal.ConsensusWindows {
		if w <= 0 {
			return invalidf("signal.consensusWindows entries must be > 0, got %d", w)
		}
	}
	if cfg.Signal.Volatility.Span < 0 {
		return ErrInvalid("signal.volatility.span must be >= 0")
	}
	if cfg.Signal.ModelSeqLen < 0 {
		return ErrInvalid("signal.modelSeqLen must be >= 0")
	}

	if cfg.Ensemble.ConfidenceCap < 0 || cfg.Ensemble.ConfidenceCap > 100 {
		return ErrInvalid("ensemble.confidenceCap must be within [0,100]")
	}
	if cfg.Ensemble.AccuracySpan < 0 {
		return ErrInvalid("ensemble.accuracySpan must be >= 0")
	}

	if err := validateSizing(cfg.Sizing); err != nil {
		return err
	}
	if err := validateRisk(cfg.Risk); err != nil {
		return err
	}

	if cfg.Journal.Buffer < 0 {
		return ErrInvalid("journal.buffer must be >= 0")
	}
	if cfg.Alerts.ThrottleMinutes < 0 {
		return ErrInvalid("alerts.throttleMinutes must be >= 0")
	}
	return nil
}

func validateSizing(c SizingConfig) error {
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return ErrInvalid("sizing.minConfidence must be within [0,100]")
	}
	if c.WinProbCap < 0 || c.WinProbCap > 1 {
		return ErrInvalid("sizing.winProbCap must be within [0,1]")
	}
	if c.KellyFactor < 0 || c.KellyFactor > 1 {
		return ErrInvalid("sizing.kellyFactor must be within [0,1]")
	}
	if c.MaxPositionPct < 0 || c.MaxPositionPct > 1 {
		return ErrInvalid("sizing.maxPositionPct must be within [0,1]")
	}
	if c.PayoutRatio < 0 || c.MinStake < 0 || c.MaxStake < 0 {
		return ErrInvalid("sizing.payoutRatio/minStake/maxStake must be >= 0")
	}
	if c.MinStake > 0 && c.MaxStake > 0 && c.MinStake > c.MaxStake {
		return ErrInvalid("sizing.minStake must not exceed sizing.maxStake")
	}
	return nil
}

func validateRisk(c RiskConfig) error {
	if c.DailyLossLimitPct < 0 || c.DailyLossLimitPct > 1 {
		return ErrInvalid("risk.dailyLossLimitPct must be within [0,1]")
	}
	if c.WeeklyLossLimitPct < 0 || c.WeeklyLossLimitPct > 1 {
		return ErrInvalid("risk.weeklyLossLimitPct must be within [0,1]")
	}
	if c.MonthlyLossLimitPct < 0 || c.MonthlyLossLimitPct > 1 {
		return ErrInvalid("risk.monthlyLossLimitPct must be within [0,1]")
	}
	if c.MaxStakePct < 0 || c.MaxStakePct > 1 {
		return ErrInvalid("risk.maxStakePct must be within [0,1]")
	}
	if c.MinConfidenceDiffer < 0 || c.MinConfidenceDiffer > 100 ||
		c.MinConfidenceMatch < 0 || c.MinConfidenceMatch > 100 {
		return ErrInvalid("risk confidence floors must be within [0,100]")
	}
	if c.MinBalance < 0 || c.VolatilityCeiling < 0 {
		return ErrInvalid("risk.minBalance/volatilityCeiling must be >= 0")
	}
	if c.MaxOpenWagers < 0 || c.MaxTradesPerHour < 0 || c.MaxTradesPerDay < 0 {
		return ErrInvalid("risk trade-count limits must be >= 0")
	}
	if c.BreakerThreshold < 0 || c.BreakerCooldownMinutes < 0 {
		return ErrInvalid("risk.breakerThreshold/breakerCooldownMinutes must be >= 0")
	}
	return nil
}
