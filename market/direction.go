package market

import "fmt"

// Direction 数字合约的下注方向
// match 押下一跳的个位数字等于预测数字，differ 押不等于
type Direction int

const (
	// DirectionMatch 匹配方向
	DirectionMatch Direction = iota
	// DirectionDiffer 不匹配方向
	DirectionDiffer
)

// String 返回方向名称
func (d Direction) String() string {
	switch d {
	case DirectionMatch:
		return "match"
	case DirectionDiffer:
		return "differ"
	default:
		return "UNKNOWN"
	}
}

// ContractType 返回对应的合约类型标识
func (d Direction) ContractType() string {
	switch d {
	case DirectionMatch:
		return "DIGITMATCH"
	case DirectionDiffer:
		return "DIGITDIFF"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection 解析方向名称，支持单数与复数写法
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "match", "matches":
		return DirectionMatch, nil
	case "differ", "differs":
		return DirectionDiffer, nil
	default:
		return DirectionMatch, fmt.Errorf("unknown direction: %q", s)
	}
}
