package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "digit-trader-go/config"
)

// MockParameterApplier 模拟参数应用器
type MockParameterApplier struct {
	applied map[string]interface{}
}

func NewMockParameterApplier() *MockParameterApplier {
	return &MockParameterApplier{
		applied: make(map[string]interface{}),
	}
}

func (m *MockParameterApplier) ApplyParameters(params map[string]interface{}) error {
	for k, v := range params {
		m.applied[k] = v
	}
	return nil
}

func (m *MockParameterApplier) GetApplied(key string) interface{} {
	return m.applied[key]
}

const reloadFixture = `
env: dev
gateway:
  symbol: R_100
engine:
  windowCapacity: 321
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// replaceConfigFile 以临时文件加 rename 的方式原子替换，模拟编辑器保存，
// 也避免监听协程读到截断了一半的文件。
func replaceConfigFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	writeConfigFile(t, tmp, content)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("Failed to replace config: %v", err)
	}
}

func TestHotReloader_New(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	cfg := DefaultHotReloadConfig()
	reloader, err := NewHotReloader(configPath, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	defer reloader.Stop()

	if reloader.configPath != configPath {
		t.Errorf("Expected config path %s, got %s", configPath, reloader.configPath)
	}
}

func TestHotReloader_RegisterValidator(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	cfg := DefaultHotReloadConfig()
	reloader, _ := NewHotReloader(configPath, cfg, nil)
	defer reloader.Stop()

	reloader.RegisterValidator("risk", &RiskParameterValidator{})

	// 验证注册成功
	if len(reloader.validators) != 1 {
		t.Errorf("Expected 1 validator, got %d", len(reloader.validators))
	}
}

func TestHotReloader_ValidateAndApply(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	cfg := DefaultHotReloadConfig()
	reloader, _ := NewHotReloader(configPath, cfg, nil)
	defer reloader.Stop()

	// 注册验证器和应用器
	applier := NewMockParameterApplier()
	reloader.RegisterValidator("risk", &RiskParameterValidator{})
	reloader.RegisterApplier("risk", applier)

	// 有效参数
	validParams := map[string]interface{}{
		"daily_loss_limit_pct":  0.05,
		"min_confidence_differ": 72.0,
		"breaker_threshold":     5,
	}
	if err := reloader.ApplyParameters("risk", validParams); err != nil {
		t.Errorf("Failed to apply valid parameters: %v", err)
	}
	if applier.GetApplied("daily_loss_limit_pct") != 0.05 {
		t.Error("Parameters not applied correctly")
	}

	// 无效参数不应到达应用器
	badParams := map[string]interface{}{"daily_loss_limit_pct": 1.5}
	if err := reloader.ApplyParameters("risk", badParams); err == nil {
		t.Error("Expected validation error but got none")
	}
	if applier.GetApplied("daily_loss_limit_pct") != 0.05 {
		t.Error("Invalid parameters must not be applied")
	}

	// 未注册的类别
	if err := reloader.ApplyParameters("unknown", validParams); err == nil {
		t.Error("Expected error for unregistered category")
	}
}

func TestHotReloader_ReloadOnFileChange(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	// 冷却设为 0，文件落盘过程中的多次事件都会触发重载
	reloader, err := NewHotReloader(configPath, HotReloadConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	defer reloader.Stop()

	reloaded := make(chan appconfig.AppConfig, 8)
	reloader.SetReloadHandler(func(cfg appconfig.AppConfig) error {
		select {
		case reloaded <- cfg:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	replaceConfigFile(t, configPath, `
env: dev
gateway:
  symbol: R_100
engine:
  windowCapacity: 654
`)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Engine.WindowCapacity == 654 {
				if reloader.GetLastReloadTime().IsZero() {
					t.Error("Expected last reload time to be set")
				}
				return
			}
			// 文件未写完时的中间事件，继续等
		case <-deadline:
			t.Fatal("Timed out waiting for reload")
		}
	}
}

func TestHotReloader_BadConfigKeepsOldParameters(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	reloader, err := NewHotReloader(configPath, HotReloadConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("Failed to create hot reloader: %v", err)
	}
	defer reloader.Stop()

	called := make(chan struct{}, 1)
	reloader.SetReloadHandler(func(appconfig.AppConfig) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	// 坏配置：验证失败，处理函数不应被调用
	replaceConfigFile(t, configPath, "trade:\n  mode: dry-run\n")

	select {
	case <-called:
		t.Fatal("Handler must not run for invalid config")
	case <-time.After(300 * time.Millisecond):
	}
	if !reloader.GetLastReloadTime().IsZero() {
		t.Error("Expected last reload time to remain zero")
	}
}

func TestHotReloader_StartStop(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	cfg := DefaultHotReloadConfig()
	reloader, _ := NewHotReloader(configPath, cfg, nil)

	if err := reloader.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start reloader: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := reloader.Stop(); err != nil {
		t.Errorf("Failed to stop reloader: %v", err)
	}
}

func TestRiskParameterValidator(t *testing.T) {
	validator := &RiskParameterValidator{}

	valid := []map[string]interface{}{
		{"daily_loss_limit_pct": 0.08, "weekly_loss_limit_pct": 0.15, "monthly_loss_limit_pct": 0.25},
		{"min_confidence_differ": 70.0, "min_confidence_match": 75.0},
		{"breaker_threshold": 3},
		{"breaker_threshold": 3.0}, // JSON 解码后的整数
		{},
	}
	for i, params := range valid {
		if err := validator.Validate(params); err != nil {
			t.Errorf("case %d: expected valid parameters but got error: %v", i, err)
		}
	}

	invalid := []map[string]interface{}{
		{"daily_loss_limit_pct": 0.0},
		{"daily_loss_limit_pct": 1.5},
		{"weekly_loss_limit_pct": -0.1},
		{"min_confidence_differ": 150.0},
		{"min_confidence_match": -1.0},
		{"breaker_threshold": 0},
		{"breaker_threshold": 200},
	}
	for i, params := range invalid {
		if err := validator.Validate(params); err == nil {
			t.Errorf("case %d: expected validation error but got none", i)
		}
	}
}

func TestSizingParameterValidator(t *testing.T) {
	validator := &SizingParameterValidator{}

	valid := []map[string]interface{}{
		{"min_confidence": 55.0, "kelly_factor": 0.5},
		{"max_position_pct": 0.02, "min_stake": 0.35},
		{"kelly_factor": 0.0},
		{"kelly_factor": 1.0},
	}
	for i, params := range valid {
		if err := validator.Validate(params); err != nil {
			t.Errorf("case %d: expected valid parameters but got error: %v", i, err)
		}
	}

	invalid := []map[string]interface{}{
		{"min_confidence": 101.0},
		{"kelly_factor": 1.5},
		{"max_position_pct": 0.0},
		{"max_position_pct": 0.5},
		{"min_stake": -1.0},
	}
	for i, params := range invalid {
		if err := validator.Validate(params); err == nil {
			t.Errorf("case %d: expected validation error but got none", i)
		}
	}
}

func TestAlertParameterValidator(t *testing.T) {
	validator := &AlertParameterValidator{}

	if err := validator.Validate(map[string]interface{}{"throttle_interval": "5m"}); err != nil {
		t.Errorf("Expected valid parameters but got error: %v", err)
	}
	if err := validator.Validate(map[string]interface{}{"throttle_interval": "invalid"}); err == nil {
		t.Error("Expected validation error but got none")
	}
}

func TestHotReloader_GetLastReloadTime(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	writeConfigFile(t, configPath, reloadFixture)

	cfg := DefaultHotReloadConfig()
	reloader, _ := NewHotReloader(configPath, cfg, nil)
	defer reloader.Stop()

	// 初始时间应该是零值
	if !reloader.GetLastReloadTime().IsZero() {
		t.Error("Expected zero time for last reload")
	}
}
