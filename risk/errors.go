package risk

import "errors"

// 预交易检查的哨兵错误，每个失败的检查对应一个明确原因。
var (
	ErrTradingDisabled   = errors.New("trading disabled")
	ErrCircuitOpen       = errors.New("circuit breaker open")
	ErrSuspended         = errors.New("trading suspended")
	ErrTooManyLosses     = errors.New("consecutive losses at limit")
	ErrLowConfidence     = errors.New("confidence below floor")
	ErrVolatilityTooHigh = errors.New("volatility above ceiling")
	ErrStakeTooLarge     = errors.New("stake exceeds balance limit")
	ErrTooManyOpenWagers = errors.New("open wagers at limit")
	ErrHourlyCapReached  = errors.New("hourly trade cap reached")
	ErrDailyCapReached   = errors.New("daily trade cap reached")
)
