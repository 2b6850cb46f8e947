package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrBadPrice 表示报价无法解析为合法价格，该 tick 应被整体丢弃。
	ErrBadPrice = errors.New("malformed tick price")
)

// Tick 是一条行情报价，携带从价格尾数推导出的数字（0-9）。
// 创建后不可变；digit 的推导基于报价精度下的最后一位小数。
type Tick struct {
	Price decimal.Decimal
	Digit int
	At    time.Time
}

// NewTick 解析原始报价字符串并按 pip 精度提取尾数数字。
// 非数字或非正的报价返回 ErrBadPrice。
func NewTick(raw string, pipDigits int32, at time.Time) (Tick, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return Tick{}, fmt.Errorf("%w: %q", ErrBadPrice, raw)
	}
	return NewTickFromDecimal(price, pipDigits, at)
}

// NewTickFromDecimal 从已解析的 decimal 构造 Tick。
func NewTickFromDecimal(price decimal.Decimal, pipDigits int32, at time.Time) (Tick, error) {
	if price.Sign() <= 0 {
		return Tick{}, fmt.Errorf("%w: non-positive %s", ErrBadPrice, price)
	}
	return Tick{
		Price: price,
		Digit: LastDigit(price, pipDigits),
		At:    at,
	}, nil
}

// LastDigit 返回价格在 pip 精度下的最后一位数字。
// 先按固定小数位格式化（例如 pip=2 时 1200.5 -> "1200.50"），
// 再取末位字符，避免浮点格式化引入的尾数漂移。
func LastDigit(price decimal.Decimal, pipDigits int32) int {
	if pipDigits < 0 {
		pipDigits = 0
	}
	s := price.StringFixed(pipDigits)
	c := s[len(s)-1]
	return int(c - '0')
}

// PriceFloat 返回 float64 形式的价格，供统计计算使用。
func (t Tick) PriceFloat() float64 {
	f, _ := t.Price.Float64()
	return f
}
