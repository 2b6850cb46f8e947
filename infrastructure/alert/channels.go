package alert

import (
	"fmt"

	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
)

// ZapChannel 把告警写进结构化日志。
type ZapChannel struct {
	log  *logger.Logger
	name string
}

// NewZapChannel 创建日志告警通道
func NewZapChannel(name string, log *logger.Logger) *ZapChannel {
	if log == nil {
		log = logger.NewNop()
	}
	return &ZapChannel{log: log, name: name}
}

// Send 发送告警到日志
func (c *ZapChannel) Send(alert Alert) error {
	fields := []zap.Field{
		zap.String("level", string(alert.Level)),
		zap.Time("at", alert.Timestamp),
		zap.Any("fields", alert.Fields),
	}
	switch alert.Level {
	case LevelError, LevelCritical:
		c.log.Error("Alert: "+alert.Message, fields...)
	case LevelWarning:
		c.log.Warn("Alert: "+alert.Message, fields...)
	default:
		c.log.Info("Alert: "+alert.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *ZapChannel) Name() string {
	return c.name
}

// ConsoleChannel 控制台告警通道（彩色输出）
type ConsoleChannel struct {
	name string
}

// NewConsoleChannel 创建控制台告警通道
func NewConsoleChannel(name string) *ConsoleChannel {
	return &ConsoleChannel{
		name: name,
	}
}

// Send 发送告警到控制台（带颜色）
func (c *ConsoleChannel) Send(alert Alert) error {
	colorReset := "\033[0m"
	colorCode := ""

	switch alert.Level {
	case LevelInfo:
		colorCode = "\033[32m" // 绿色
	case LevelWarning:
		colorCode = "\033[33m" // 黄色
	case LevelError:
		colorCode = "\033[31m" // 红色
	case LevelCritical:
		colorCode = "\033[35m" // 紫色
	default:
		colorCode = colorReset
	}

	msg := fmt.Sprintf("%s[%s]%s %s - %s",
		colorCode,
		alert.Level,
		colorReset,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.Message,
	)

	if len(alert.Fields) > 0 {
		msg += " | "
		for k, v := range alert.Fields {
			msg += fmt.Sprintf("%s=%v ", k, v)
		}
	}

	fmt.Println(msg)
	return nil
}

// Name 返回通道名称
func (c *ConsoleChannel) Name() string {
	return c.name
}

// FuncChannel 把告警交给任意回调，用于挂接持久化等自定义下游。
type FuncChannel struct {
	name string
	fn   func(Alert) error
}

// NewFuncChannel 创建回调告警通道
func NewFuncChannel(name string, fn func(Alert) error) *FuncChannel {
	return &FuncChannel{name: name, fn: fn}
}

// Send 调用回调
func (c *FuncChannel) Send(alert Alert) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(alert)
}

// Name 返回通道名称
func (c *FuncChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	return c.alerts
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.shouldErr = shouldErr
}

// Clear 清空告警记录
func (c *MockChannel) Clear() {
	c.alerts = make([]Alert, 0)
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	return len(c.alerts)
}
