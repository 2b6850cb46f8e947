package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

// LifecycleManager 生命周期管理器。
// 按注册顺序启动、逆序停止；启动中途失败时回滚已启动的组件。
type LifecycleManager struct {
	components []Lifecycle
	mu         sync.RWMutex
}

// NewLifecycleManager 创建生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 注册组件
func (m *LifecycleManager) Register(component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component)
}

// StartAll 按注册顺序启动所有组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.components[j].Stop()
			}
			return fmt.Errorf("start %s: %w", component.Name(), err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件，返回最后一个失败
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	for i := len(m.components) - 1; i >= 0; i-- {
		if err := m.components[i].Stop(); err != nil {
			lastErr = fmt.Errorf("stop %s: %w", m.components[i].Name(), err)
		}
	}
	return lastErr
}

// CheckHealth 检查所有组件健康状态
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return err
		}
	}
	return nil
}

// loopComponent 把阻塞式运行循环装进生命周期：
// Start 在后台启动循环，Stop 取消并等待退出。
// 循环寿命由 Stop 独占控制，保证逆序停机的顺序确定。
type loopComponent struct {
	name string
	run  func(ctx context.Context) error
	log  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newLoopComponent(name string, log *logger.Logger, run func(ctx context.Context) error) *loopComponent {
	return &loopComponent{name: name, run: run, log: log}
}

func (l *loopComponent) Name() string { return l.name }

func (l *loopComponent) Start(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done

	go func() {
		defer close(done)
		if err := l.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.log.Error("Component loop exited",
				zap.String("component", l.name),
				zap.Error(err))
		}
	}()
	return nil
}

func (l *loopComponent) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("%s: stop timed out", l.name)
	}
}

func (l *loopComponent) Health() error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return fmt.Errorf("%s: not started", l.name)
	}
	select {
	case <-done:
		return fmt.Errorf("%s: loop exited", l.name)
	default:
		return nil
	}
}

// taskComponent 适配自带启停方法的组件，缺省步骤为空操作
type taskComponent struct {
	name  string
	start func(ctx context.Context) error
	stop  func() error
}

func (t *taskComponent) Name() string { return t.name }

func (t *taskComponent) Start(ctx context.Context) error {
	if t.start == nil {
		return nil
	}
	return t.start(ctx)
}

func (t *taskComponent) Stop() error {
	if t.stop == nil {
		return nil
	}
	return t.stop()
}

func (t *taskComponent) Health() error { return nil }
