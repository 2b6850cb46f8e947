package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appconfig "digit-trader-go/config"
	"digit-trader-go/infrastructure/logger"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免频繁更新
}

// DefaultHotReloadConfig 默认热更新配置
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:      true,
		CooldownTime: 5 * time.Second,
	}
}

// ParameterValidator 参数验证器接口
type ParameterValidator interface {
	Validate(params map[string]interface{}) error
}

// ParameterApplier 参数应用器接口
type ParameterApplier interface {
	ApplyParameters(params map[string]interface{}) error
}

// ReloadHandler 在配置文件重新加载并通过验证后收到新配置。
type ReloadHandler func(cfg appconfig.AppConfig) error

// HotReloader 配置热更新器。文件变化触发整体重载，
// ApplyParameters 供运行期单项调参（HTTP 接口）使用。
type HotReloader struct {
	config        HotReloadConfig
	configPath    string
	watcher       *fsnotify.Watcher
	log           *logger.Logger
	validators    map[string]ParameterValidator
	appliers      map[string]ParameterApplier
	lastReload    time.Time
	mu            sync.RWMutex
	stopChan      chan struct{}
	doneChan      chan struct{}
	reloadHandler ReloadHandler
}

// NewHotReloader 创建热更新器
func NewHotReloader(configPath string, cfg HotReloadConfig, log *logger.Logger) (*HotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &HotReloader{
		config:     cfg,
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		log:        log,
		validators: make(map[string]ParameterValidator),
		appliers:   make(map[string]ParameterApplier),
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// RegisterValidator 注册参数验证器
func (h *HotReloader) RegisterValidator(name string, validator ParameterValidator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.validators[name] = validator
}

// RegisterApplier 注册参数应用器
func (h *HotReloader) RegisterApplier(name string, applier ParameterApplier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appliers[name] = applier
}

// SetReloadHandler 设置重载处理函数
func (h *HotReloader) SetReloadHandler(handler ReloadHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloadHandler = handler
}

// Start 启动热更新监听
func (h *HotReloader) Start(ctx context.Context) error {
	if !h.config.Enabled {
		return nil
	}

	// 编辑器保存多为写临时文件再 rename，监听目录才不会在换名后丢事件
	if err := h.watcher.Add(filepath.Dir(h.configPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	go h.watch(ctx)

	return nil
}

// Stop 停止热更新
func (h *HotReloader) Stop() error {
	if !h.config.Enabled {
		// 如果没有启用，直接关闭 watcher
		if h.watcher != nil {
			return h.watcher.Close()
		}
		return nil
	}

	// 发送停止信号
	select {
	case <-h.stopChan:
		// 已经停止
	default:
		close(h.stopChan)
	}

	// 等待 goroutine 结束（带超时）
	select {
	case <-h.doneChan:
		// 正常结束
	case <-time.After(1 * time.Second):
		// 超时，可能 watch goroutine 没有启动
	}

	if h.watcher != nil {
		return h.watcher.Close()
	}

	return nil
}

// watch 监听文件变化
func (h *HotReloader) watch(ctx context.Context) {
	defer close(h.doneChan)

	base := filepath.Base(h.configPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopChan:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}

			// 只处理写入和创建事件
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				h.handleConfigChange()
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			// 记录错误但继续监听
			h.log.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// handleConfigChange 处理配置变化
func (h *HotReloader) handleConfigChange() {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 检查冷却时间
	if time.Since(h.lastReload) < h.config.CooldownTime {
		return
	}

	// 重新加载并验证，坏配置停留在旧参数上
	cfg, err := appconfig.LoadWithEnvOverrides(h.configPath)
	if err != nil {
		h.log.Warn("Config reload skipped",
			zap.String("path", h.configPath),
			zap.Error(err))
		return
	}

	if h.reloadHandler != nil {
		if err := h.reloadHandler(cfg); err != nil {
			h.log.Error("Config reload failed", zap.Error(err))
			return
		}
	}

	h.lastReload = time.Now()
	h.log.Info("Config reloaded", zap.String("path", h.configPath))
}

// ValidateParameters 验证参数
func (h *HotReloader) ValidateParameters(category string, params map[string]interface{}) error {
	h.mu.RLock()
	validator, ok := h.validators[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no validator registered for category: %s", category)
	}

	return validator.Validate(params)
}

// ApplyParameters 应用参数
func (h *HotReloader) ApplyParameters(category string, params map[string]interface{}) error {
	// 先验证
	if err := h.ValidateParameters(category, params); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// 再应用
	h.mu.RLock()
	applier, ok := h.appliers[category]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no applier registered for category: %s", category)
	}

	return applier.ApplyParameters(params)
}

// GetLastReloadTime 获取最后重载时间
func (h *HotReloader) GetLastReloadTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastReload
}

// asFloat 归一化数值参数。HTTP 层解码 JSON 后整数也是 float64，
// 测试里直接构造 map 则可能是 int。
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
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

// RiskParameterValidator 风控参数验证器
type RiskParameterValidator struct{}

func (v *RiskParameterValidator) Validate(params map[string]interface{}) error {
	// 验证 daily_loss_limit_pct
	if pct, ok := asFloat(params["daily_loss_limit_pct"]); ok {
		if pct <= 0 || pct > 1.0 {
			return fmt.Errorf("daily_loss_limit_pct must be between 0 and 1, got %f", pct)
		}
	}

	// 验证 weekly_loss_limit_pct
	if pct, ok := asFloat(params["weekly_loss_limit_pct"]); ok {
		if pct <= 0 || pct > 1.0 {
			return fmt.Errorf("weekly_loss_limit_pct must be between 0 and 1, got %f", pct)
		}
	}

	// 验证 monthly_loss_limit_pct
	if pct, ok := asFloat(params["monthly_loss_limit_pct"]); ok {
		if pct <= 0 || pct > 1.0 {
			return fmt.Errorf("monthly_loss_limit_pct must be between 0 and 1, got %f", pct)
		}
	}

	// 验证 min_confidence_differ
	if c, ok := asFloat(params["min_confidence_differ"]); ok {
		if c < 0 || c > 100 {
			return fmt.Errorf("min_confidence_differ must be between 0 and 100, got %f", c)
		}
	}

	// 验证 min_confidence_match
	if c, ok := asFloat(params["min_confidence_match"]); ok {
		if c < 0 || c > 100 {
			return fmt.Errorf("min_confidence_match must be between 0 and 100, got %f", c)
		}
	}

	// 验证 breaker_threshold
	if threshold, ok := asFloat(params["breaker_threshold"]); ok {
		if threshold < 1 || threshold > 100 {
			return fmt.Errorf("breaker_threshold must be between 1 and 100, got %.0f", threshold)
		}
	}

	return nil
}

// SizingParameterValidator 仓位参数验证器
type SizingParameterValidator struct{}

func (v *SizingParameterValidator) Validate(params map[string]interface{}) error {
	// 验证 min_confidence
	if c, ok := asFloat(params["min_confidence"]); ok {
		if c < 0 || c > 100 {
			return fmt.Errorf("min_confidence must be between 0 and 100, got %f", c)
		}
	}

	// 验证 kelly_factor
	if k, ok := asFloat(params["kelly_factor"]); ok {
		if k < 0 || k > 1.0 {
			return fmt.Errorf("kelly_factor must be between 0 and 1, got %f", k)
		}
	}

	// 验证 max_position_pct，运行期调参不允许超过余额的 10%
	if pct, ok := asFloat(params["max_position_pct"]); ok {
		if pct <= 0 || pct > 0.1 {
			return fmt.Errorf("max_position_pct must be between 0 and 0.1, got %f", pct)
		}
	}

	// 验证 min_stake
	if s, ok := asFloat(params["min_stake"]); ok {
		if s <= 0 {
			return fmt.Errorf("min_stake must be positive, got %f", s)
		}
	}

	return nil
}

// AlertParameterValidator 告警参数验证器
type AlertParameterValidator struct{}

func (v *AlertParameterValidator) Validate(params map[string]interface{}) error {
	// 验证 throttle_interval
	if interval, ok := params["throttle_interval"].(string); ok {
		if _, err := time.ParseDuration(interval); err != nil {
			return fmt.Errorf("invalid throttle_interval: %w", err)
		}
	}

	return nil
}
