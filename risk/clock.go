package risk

import "time"

// Clock 抽象时间来源，便于测试注入
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC 真实时钟，统一使用 UTC
var NowUTC Clock = realClock{}
