package market

import (
	"github.com/markcheno/go-talib"
)

// PriceStdDev 返回最近 period 个价格的总体标准差，
// 序列不足 period 时返回 0。
func PriceStdDev(prices []float64, period int) float64 {
	if period < 2 || len(prices) < period {
		return 0
	}
	out := talib.StdDev(prices, period, 1.0)
	return out[len(out)-1]
}

// ReturnsStdDev 返回整段序列简单收益率的标准差，供形态识别使用。
// 序列过短或价格恒定时返回 0。
func ReturnsStdDev(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	if len(returns) < 2 {
		return 0
	}
	out := talib.StdDev(returns, len(returns), 1.0)
	return out[len(out)-1]
}
