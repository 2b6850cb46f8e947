// Package container 负责交易机的依赖装配与生命周期：
// 按基础设施、决策核心、网关三个阶段构建组件，
// 再以固定顺序启动，让行情流最后接入、最先断开。
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appconfig "digit-trader-go/config"
	"digit-trader-go/ensemble"
	"digit-trader-go/exposure"
	"digit-trader-go/gateway"
	"digit-trader-go/infrastructure/alert"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/infrastructure/monitor"
	"digit-trader-go/internal/config"
	"digit-trader-go/internal/engine"
	traderhttp "digit-trader-go/internal/transport/http"
	"digit-trader-go/journal"
	"digit-trader-go/market"
	"digit-trader-go/monitor/logschema"
	"digit-trader-go/posttrade"
	"digit-trader-go/risk"
	"digit-trader-go/signal"
	"digit-trader-go/sizing"
)

// Container 聚合交易机的全部组件
type Container struct {
	cfg        appconfig.AppConfig
	configPath string

	log      *logger.Logger
	mon      *monitor.Monitor
	alerts   *alert.Manager
	journal  *journal.Journal
	recorder *journal.Recorder

	engine       *engine.Engine
	reloader     *config.HotReloader
	sizingParams *sizingApplier

	ws     *gateway.DerivWS
	live   *gateway.DerivTrader
	paper  *gateway.PaperTrader
	trader gateway.TradeSubmitter
	bridge *streamBridge

	server    *traderhttp.Server
	lifecycle *LifecycleManager
}

// New 以已加载的配置创建容器。configPath 非空时启用配置热更新。
func New(cfg appconfig.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 按依赖顺序构建所有组件，不产生任何外部连接
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure: %w", err)
	}
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services: %w", err)
	}
	if err := c.buildGateway(); err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	c.registerLifecycleComponents()

	c.log.Info("Container assembled",
		zap.String("symbol", c.cfg.Gateway.Symbol),
		zap.String("mode", c.cfg.Trade.Mode),
		zap.String("strategy", c.cfg.Engine.Strategy),
		zap.Bool("journal", c.journal != nil),
		zap.Bool("hot_reload", c.reloader != nil),
		zap.String("http", c.cfg.Server.Addr))
	return nil
}

// buildInfrastructure 日志、指标、交易日志与告警通道
func (c *Container) buildInfrastructure() error {
	log, err := logger.New(logger.Config{
		Level:      c.cfg.Log.Level,
		Outputs:    logOutputs(c.cfg.Log.Outputs),
		OutputFile: c.cfg.Log.OutputFile,
		ErrorFile:  c.cfg.Log.ErrorFile,
		Format:     c.cfg.Log.Format,
		MaxSize:    c.cfg.Log.MaxSize,
		MaxBackups: c.cfg.Log.MaxBackups,
		MaxAge:     c.cfg.Log.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	c.log = log

	c.mon = monitor.New(monitor.DefaultConfig())

	if c.cfg.Journal.Path != "" {
		j, err := journal.Open(c.cfg.Journal.Path, c.log)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		c.journal = j
		c.recorder = journal.NewRecorder(j, c.log, c.cfg.Journal.Buffer)
	}

	channels := []alert.Channel{alert.NewZapChannel("log", c.log)}
	if c.cfg.Alerts.Console {
		channels = append(channels, alert.NewConsoleChannel("console"))
	}
	if c.journal != nil {
		jnl := c.journal
		channels = append(channels, alert.NewFuncChannel("journal", func(a alert.Alert) error {
			rec := journal.AlertRecord{
				Level:   string(a.Level),
				Message: a.Message,
			}
			if len(a.Fields) > 0 {
				if details, err := json.Marshal(a.Fields); err == nil {
					rec.Details = string(details)
				}
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return jnl.RecordAlert(ctx, &rec)
		}))
	}
	c.alerts = alert.NewManager(channels, time.Duration(c.cfg.Alerts.ThrottleMinutes)*time.Minute)
	return nil
}

// buildCoreServices 信号提取器、预测器、风控、仓位与决策引擎
func (c *Container) buildCoreServices() error {
	if c.cfg.Signal.ModelPath != "" {
		if err := signal.InitializeORT(""); err != nil {
			return fmt.Errorf("init onnx runtime: %w", err)
		}
	}
	extractors, err := signal.NewFactory().Build(signalConfig(c.cfg.Signal))
	if err != nil {
		return fmt.Errorf("build extractors: %w", err)
	}

	predictor := ensemble.NewPredictor(extractors, ensemble.Config{
		ConfidenceCap: c.cfg.Ensemble.ConfidenceCap,
		AccuracySpan:  c.cfg.Ensemble.AccuracySpan,
	})
	governor := risk.NewGovernor(riskConfig(c.cfg.Risk), c.cfg.Trade.InitialBalance, risk.NowUTC)
	sizer := sizing.New(sizingConfig(c.cfg.Sizing))

	direction, err := market.ParseDirection(c.cfg.Engine.Strategy)
	if err != nil {
		return fmt.Errorf("parse strategy: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Symbol:            c.cfg.Gateway.Symbol,
		PipDigits:         c.cfg.Gateway.PipDigits,
		WindowCapacity:    c.cfg.Engine.WindowCapacity,
		Strategy:          direction,
		VolatilitySpan:    c.cfg.Engine.VolatilitySpan,
		ConfirmEntryDigit: c.cfg.Engine.ConfirmEntryDigit,
		SessionStopLoss:   c.cfg.Engine.SessionStopLoss,
		SessionTakeProfit: c.cfg.Engine.SessionTakeProfit,
		MaxPending:        c.cfg.Engine.MaxPending,
	}, engine.Components{
		Predictor: predictor,
		Sizer:     sizer,
		Governor:  governor,
		Outcomes:  posttrade.NewTracker(0),
		Analyzer:  posttrade.NewAnalyzer(),
		Exposure:  exposure.NewTracker(),
		Logger:    c.log,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	c.engine = eng

	if c.configPath != "" {
		if err := c.buildReloader(); err != nil {
			return err
		}
	}
	return nil
}

// buildReloader 配置热更新：文件重载与 HTTP 单项调参共用一套验证器
func (c *Container) buildReloader() error {
	r, err := config.NewHotReloader(c.configPath, config.DefaultHotReloadConfig(), c.log)
	if err != nil {
		return fmt.Errorf("create hot reloader: %w", err)
	}
	c.sizingParams = &sizingApplier{engine: c.engine, current: sizingConfig(c.cfg.Sizing)}

	r.RegisterValidator("risk", &config.RiskParameterValidator{})
	r.RegisterApplier("risk", &riskApplier{engine: c.engine})
	r.RegisterValidator("sizing", &config.SizingParameterValidator{})
	r.RegisterApplier("sizing", c.sizingParams)
	r.RegisterValidator("alert", &config.AlertParameterValidator{})
	r.RegisterApplier("alert", &alertApplier{alerts: c.alerts})
	r.SetReloadHandler(c.onConfigReload)
	c.reloader = r
	return nil
}

// onConfigReload 文件重载后只应用运行期可安全变更的参数：
// 风控阈值、仓位参数与告警间隔。连接与标的改动需要重启。
func (c *Container) onConfigReload(cfg appconfig.AppConfig) error {
	rc := riskConfig(cfg.Risk)
	c.engine.UpdateGovernor(func(g *risk.Governor) {
		g.SetConfidenceFloors(rc.MinConfidenceDiffer, rc.MinConfidenceMatch)
		g.SetLossLimits(rc.DailyLossLimitPct, rc.WeeklyLossLimitPct, rc.MonthlyLossLimitPct)
		g.SetBreakerThreshold(rc.BreakerThreshold)
	})
	if c.sizingParams != nil {
		c.sizingParams.reset(sizingConfig(cfg.Sizing))
	}
	if cfg.Alerts.ThrottleMinutes > 0 {
		c.alerts.SetThrottleInterval(time.Duration(cfg.Alerts.ThrottleMinutes) * time.Minute)
	}
	return nil
}

// buildGateway 行情连接、成交通道、桥接层与状态服务
func (c *Container) buildGateway() error {
	liveMode := strings.EqualFold(c.cfg.Trade.Mode, "live")

	sink := &journalingSink{
		symbol:   c.cfg.Gateway.Symbol,
		engine:   c.engine,
		mon:      c.mon,
		recorder: c.recorder,
		emit:     c.emitEvent,
	}

	wsCfg := gateway.WSConfig{
		Endpoint:     c.cfg.Gateway.Endpoint,
		AppID:        c.cfg.Gateway.AppID,
		Symbol:       c.cfg.Gateway.Symbol,
		OnConnect:    c.onStreamConnect,
		OnDisconnect: c.onStreamDisconnect,
		Logger:       c.log,
	}
	// 纸面模式匿名连接，只订阅行情
	if liveMode {
		wsCfg.Token = c.cfg.Gateway.Token
	}
	if c.cfg.Gateway.RateLimit > 0 {
		wsCfg.Limiter = gateway.NewTokenBucketLimiter(c.cfg.Gateway.RateLimit, c.cfg.Gateway.RateBurst)
	}
	ws, err := gateway.NewDerivWS(wsCfg)
	if err != nil {
		return fmt.Errorf("create deriv ws: %w", err)
	}
	c.ws = ws

	if liveMode {
		trader, err := gateway.NewDerivTrader(gateway.TraderConfig{
			Symbol:        c.cfg.Gateway.Symbol,
			Currency:      c.cfg.Trade.Currency,
			DurationTicks: c.cfg.Trade.DurationTicks,
			Caller:        ws,
			Sink:          sink,
			Logger:        c.log,
		})
		if err != nil {
			return fmt.Errorf("create live trader: %w", err)
		}
		c.live = trader
		c.trader = trader
	} else {
		paper, err := gateway.NewPaperTrader(gateway.PaperConfig{
			PipDigits:   c.cfg.Gateway.PipDigits,
			PayoutRatio: c.cfg.Trade.PayoutRatio,
			Sink:        sink,
			Logger:      c.log,
		})
		if err != nil {
			return fmt.Errorf("create paper trader: %w", err)
		}
		c.paper = paper
		c.trader = paper
	}

	c.bridge = newStreamBridge(bridgeConfig{
		Symbol:     c.cfg.Gateway.Symbol,
		StopLoss:   c.cfg.Engine.SessionStopLoss,
		TakeProfit: c.cfg.Engine.SessionTakeProfit,
		Engine:     c.engine,
		Trader:     c.trader,
		Paper:      c.paper,
		Live:       c.live,
		Monitor:    c.mon,
		Logger:     c.log,
		Alerts:     c.alerts,
		Recorder:   c.recorder,
		Emit:       c.emitEvent,
	})

	if c.cfg.Server.Addr != "" {
		var params traderhttp.ParameterSink
		if c.reloader != nil {
			params = c.reloader
		}
		srv, err := traderhttp.NewServer(traderhttp.ServerConfig{
			Addr:    c.cfg.Server.Addr,
			Engine:  c.engine,
			Journal: c.journal,
			Metrics: c.mon.Handler(),
			Params:  params,
			Logger:  c.log,
		})
		if err != nil {
			return fmt.Errorf("create http server: %w", err)
		}
		c.server = srv
	}
	return nil
}

// registerLifecycleComponents 注册启动顺序。行情流最后启动，
// 停机逆序执行：先断流，再排空在途提交，最后刷写日志。
func (c *Container) registerLifecycleComponents() {
	if c.recorder != nil {
		rec := c.recorder
		c.lifecycle.Register(&taskComponent{
			name: "journal_recorder",
			stop: func() error {
				rec.Close()
				return nil
			},
		})
	}
	if c.reloader != nil {
		rel := c.reloader
		c.lifecycle.Register(&taskComponent{
			name:  "hot_reloader",
			start: rel.Start,
			stop:  rel.Stop,
		})
	}
	c.lifecycle.Register(c.bridge)
	if c.server != nil {
		c.lifecycle.Register(newLoopComponent("http_server", c.log, c.server.Start))
	}
	ws, bridge := c.ws, c.bridge
	c.lifecycle.Register(newLoopComponent("deriv_stream", c.log, func(ctx context.Context) error {
		return ws.Run(ctx, bridge)
	}))
}

// Start 启动全部组件
func (c *Container) Start(ctx context.Context) error {
	if c.bridge == nil {
		return fmt.Errorf("container not built")
	}
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return err
	}
	c.alerts.SendInfo("Trader started", map[string]interface{}{
		"symbol": c.cfg.Gateway.Symbol,
		"mode":   c.cfg.Trade.Mode,
	})
	return nil
}

// Stop 逆序停机，随后输出会话汇总并关闭日志设施
func (c *Container) Stop() error {
	var firstErr error
	if err := c.lifecycle.StopAll(); err != nil {
		firstErr = err
	}

	if c.engine != nil {
		st := c.engine.Status()
		c.log.Info("Session summary",
			zap.String("symbol", st.Symbol),
			zap.Int64("ticks", st.Stats.TicksSeen),
			zap.Int64("decisions", st.Stats.Decisions),
			zap.Int("trades", st.Outcomes.Trades),
			zap.Float64("win_rate", st.Outcomes.WinRate),
			zap.Float64("session_pnl", st.SessionPnL),
			zap.Float64("balance", st.Risk.Balance))
	}

	if c.journal != nil {
		if err := c.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.log != nil {
		_ = c.log.Close()
	}
	return firstErr
}

// HealthCheck 汇报组件健康，供 systemd 看门狗使用
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 暴露决策引擎，供上层查询状态
func (c *Container) Engine() *engine.Engine { return c.engine }

// onStreamConnect 每次握手完成后回调：恢复合约订阅并校准余额
func (c *Container) onStreamConnect() {
	c.mon.RecordWSConnection()
	c.emitEvent("stream_state", map[string]interface{}{
		"symbol":    c.cfg.Gateway.Symbol,
		"connected": true,
	})
	if c.live == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.live.Resubscribe(ctx); err != nil {
		c.log.Warn("Contract resubscribe failed", zap.Error(err))
	}
	if balance, ok := c.ws.Balance(); ok {
		c.engine.SetBalance(balance)
	}
}

// onStreamDisconnect 连接断开后、重连等待前回调
func (c *Container) onStreamDisconnect(err error) {
	c.mon.RecordWSDisconnect()
	c.emitEvent("stream_state", map[string]interface{}{
		"symbol":    c.cfg.Gateway.Symbol,
		"connected": false,
	})
	c.alerts.SendWarning("Deriv stream disconnected", map[string]interface{}{
		"symbol": c.cfg.Gateway.Symbol,
		"error":  fmt.Sprint(err),
	})
}

// emitEvent 输出结构化业务事件。字段不合名录时记一条告警日志，
// 事件本身照常输出，观测不因名录滞后而丢数据。
func (c *Container) emitEvent(event string, fields map[string]interface{}) {
	if err := logschema.Validate(event, fields); err != nil {
		c.log.Warn("Log schema violation",
			zap.String("event", event),
			zap.Error(err))
	}
	c.log.WithFields(fields).Info(event)
}

// logOutputs 把配置里的 console 归一化为日志设施认的 stdout
func logOutputs(outputs []string) []string {
	out := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if o == "console" {
			o = "stdout"
		}
		out = append(out, o)
	}
	return out
}

func signalConfig(sc appconfig.SignalConfig) signal.Config {
	return signal.Config{
		Enabled:          sc.Enabled,
		FrequencySpan:    sc.FrequencySpan,
		GapSpan:          sc.GapSpan,
		ConsensusWindows: sc.ConsensusWindows,
		PatternSpan:      sc.PatternSpan,
		Volatility: signal.VolatilityConfig{
			Span:        sc.Volatility.Span,
			Floor:       sc.Volatility.Floor,
			Ceiling:     sc.Volatility.Ceiling,
			MaxMomentum: sc.Volatility.MaxMomentum,
		},
		ModelPath:   sc.ModelPath,
		ModelSeqLen: sc.ModelSeqLen,
	}
}

func riskConfig(rc appconfig.RiskConfig) risk.Config {
	return risk.Config{
		DailyLossLimitPct:   rc.DailyLossLimitPct,
		WeeklyLossLimitPct:  rc.WeeklyLossLimitPct,
		MonthlyLossLimitPct: rc.MonthlyLossLimitPct,
		MinBalance:          rc.MinBalance,
		MinConfidenceDiffer: rc.MinConfidenceDiffer,
		MinConfidenceMatch:  rc.MinConfidenceMatch,
		VolatilityCeiling:   rc.VolatilityCeiling,
		MaxStakePct:         rc.MaxStakePct,
		MaxOpenWagers:       rc.MaxOpenWagers,
		MaxTradesPerHour:    rc.MaxTradesPerHour,
		MaxTradesPerDay:     rc.MaxTradesPerDay,
		BreakerThreshold:    rc.BreakerThreshold,
		BreakerCooldown:     time.Duration(rc.BreakerCooldownMinutes) * time.Minute,
	}
}

func sizingConfig(sc appconfig.SizingConfig) sizing.Config {
	return sizing.Config{
		MinConfidence:  sc.MinConfidence,
		WinProbCap:     sc.WinProbCap,
		PayoutRatio:    sc.PayoutRatio,
		KellyFactor:    sc.KellyFactor,
		MaxPositionPct: sc.MaxPositionPct,
		MinStake:       sc.MinStake,
		MaxStake:       sc.MaxStake,
	}
}
