package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器。
// 引擎本身不感知监控，应用层在每个 tick 后用 Status 快照刷新这里的指标。
type Monitor struct {
	registry *prometheus.Registry

	// 行情指标
	ticksTotal    prometheus.Counter
	ticksRejected prometheus.Counter

	// 决策指标
	decisionsTotal prometheus.Counter
	tradesRejected prometheus.Counter
	noTrades       prometheus.Counter
	lastDigit      prometheus.Gauge
	lastConfidence prometheus.Gauge
	lastStake      prometheus.Gauge

	// 结算指标
	contractsWon    prometheus.Counter
	contractsLost   prometheus.Counter
	unknownOutcomes prometheus.Counter
	winRate         prometheus.Gauge

	// 资金与风控指标
	balance           prometheus.Gauge
	sessionPnL        prometheus.Gauge
	dailyLoss         prometheus.Gauge
	engineState       prometheus.Gauge
	openWagers        prometheus.Gauge
	consecutiveLosses prometheus.Gauge

	// 市场状态指标
	volatility prometheus.Gauge
	regime     prometheus.Gauge

	// 信号指标
	extractorWeight   *prometheus.GaugeVec
	extractorAccuracy *prometheus.GaugeVec

	// 执行与链路指标
	submitErrors  prometheus.Counter
	submitLatency prometheus.Histogram
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "dt",
		Subsystem: "trading",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ticksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_total",
			Help:      "收到的行情跳动总数",
		}),
		ticksRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_rejected_total",
			Help:      "被拒绝的坏行情总数",
		}),

		decisionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decisions_total",
			Help:      "发出的交易决策总数",
		}),
		tradesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "trades_rejected_total",
			Help:      "被风控拦下的决策总数",
		}),
		noTrades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "no_trades_total",
			Help:      "信心不足放弃下单的总数",
		}),
		lastDigit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_digit",
			Help:      "最近一次预测的数字",
		}),
		lastConfidence: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_confidence",
			Help:      "最近一次预测的信心值",
		}),
		lastStake: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_stake",
			Help:      "最近一次下单的本金",
		}),

		contractsWon: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "contracts_won_total",
			Help:      "盈利结算的合约总数",
		}),
		contractsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "contracts_lost_total",
			Help:      "亏损结算的合约总数",
		}),
		unknownOutcomes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "unknown_outcomes_total",
			Help:      "找不到对应决策的结算总数",
		}),
		winRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "win_rate",
			Help:      "近期滚动胜率",
		}),

		balance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "balance",
			Help:      "当前账户余额",
		}),
		sessionPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "session_pnl",
			Help:      "本次会话累计盈亏",
		}),
		dailyLoss: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "daily_loss",
			Help:      "当日累计亏损",
		}),
		engineState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "engine_state",
			Help:      "引擎状态(0=交易中,1=暂停,2=停牌,3=熔断)",
		}),
		openWagers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_wagers",
			Help:      "未结算合约数",
		}),
		consecutiveLosses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "consecutive_losses",
			Help:      "当前连亏次数",
		}),

		volatility: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "volatility",
			Help:      "滚动窗口收益率标准差",
		}),
		regime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "regime",
			Help:      "市场状态(0=震荡,1=趋势,2=高波动)",
		}),

		extractorWeight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "extractor_weight",
				Help:      "各特征提取器的集成权重",
			},
			[]string{"method"},
		),
		extractorAccuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "extractor_accuracy",
				Help:      "各特征提取器的滚动命中率",
			},
			[]string{"method"},
		),

		submitErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "submit_errors_total",
			Help:      "合约提交失败总数",
		}),
		submitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "submit_latency_seconds",
			Help:      "合约提交往返延迟分布（秒）",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		wsConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connections_total",
			Help:      "WebSocket连接次数",
		}),
		wsDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_disconnects_total",
			Help:      "WebSocket断开次数",
		}),
	}

	return m
}

// 行情相关方法
func (m *Monitor) RecordTick() {
	m.ticksTotal.Inc()
}

func (m *Monitor) RecordTickRejected() {
	m.ticksRejected.Inc()
}

// 决策相关方法
func (m *Monitor) RecordDecision(digit int, confidence, stake float64) {
	m.decisionsTotal.Inc()
	m.lastDigit.Set(float64(digit))
	m.lastConfidence.Set(confidence)
	m.lastStake.Set(stake)
}

func (m *Monitor) RecordTradeRejected() {
	m.tradesRejected.Inc()
}

func (m *Monitor) RecordNoTrade() {
	m.noTrades.Inc()
}

// 结算相关方法
func (m *Monitor) RecordOutcome(won bool) {
	if won {
		m.contractsWon.Inc()
	} else {
		m.contractsLost.Inc()
	}
}

func (m *Monitor) RecordUnknownOutcome() {
	m.unknownOutcomes.Inc()
}

func (m *Monitor) UpdateWinRate(value float64) {
	m.winRate.Set(value)
}

// 资金与风控相关方法
func (m *Monitor) UpdateBalance(value float64) {
	m.balance.Set(value)
}

func (m *Monitor) UpdateSessionPnL(value float64) {
	m.sessionPnL.Set(value)
}

func (m *Monitor) UpdateDailyLoss(value float64) {
	m.dailyLoss.Set(value)
}

func (m *Monitor) UpdateEngineState(state int) {
	m.engineState.Set(float64(state))
}

func (m *Monitor) UpdateOpenWagers(n int) {
	m.openWagers.Set(float64(n))
}

func (m *Monitor) UpdateConsecutiveLosses(n int) {
	m.consecutiveLosses.Set(float64(n))
}

// 市场状态相关方法
func (m *Monitor) UpdateMarket(volatility float64, regime int) {
	m.volatility.Set(volatility)
	m.regime.Set(float64(regime))
}

// 信号相关方法
func (m *Monitor) UpdateExtractor(method string, weight, accuracy float64) {
	m.extractorWeight.WithLabelValues(method).Set(weight)
	m.extractorAccuracy.WithLabelValues(method).Set(accuracy)
}

// 执行与链路相关方法
func (m *Monitor) RecordSubmitError() {
	m.submitErrors.Inc()
}

func (m *Monitor) RecordSubmitLatency(seconds float64) {
	m.submitLatency.Observe(seconds)
}

func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
