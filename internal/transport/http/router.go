package traderhttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/internal/engine"
	"digit-trader-go/journal"
)

// StatusSource 提供引擎状态快照，由决策引擎实现。
type StatusSource interface {
	Status() engine.EngineStatus
	WindowLen() int
	PendingCount() int
}

// ParameterSink 运行期调参入口，由配置热更新器实现。
type ParameterSink interface {
	ApplyParameters(category string, params map[string]interface{}) error
}

// Router 暴露 /api 下的查询与调参接口。
type Router struct {
	engine  StatusSource
	journal *journal.Journal
	params  ParameterSink
	log     *logger.Logger
}

// NewRouter 构造 API router。
func NewRouter(eng StatusSource, jnl *journal.Journal, params ParameterSink, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewNop()
	}
	return &Router{engine: eng, journal: jnl, params: params, log: log}
}

// Register 将接口挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/summary", r.handleSummary)
	group.GET("/alerts", r.handleAlerts)
	if r.params != nil {
		group.POST("/params/:category", r.handleParams)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	st := r.engine.Status()

	resp := gin.H{
		"symbol":       st.Symbol,
		"window_len":   r.engine.WindowLen(),
		"pending":      r.engine.PendingCount(),
		"open_wagers":  st.OpenWagers,
		"total_staked": st.TotalStaked.StringFixed(2),
		"session_pnl":  st.SessionPnL,
		"risk": gin.H{
			"state":          st.Risk.State.String(),
			"enabled":        st.Risk.Enabled,
			"balance":        st.Risk.Balance,
			"daily_loss":     st.Risk.DailyLoss,
			"weekly_loss":    st.Risk.WeeklyLoss,
			"monthly_loss":   st.Risk.MonthlyLoss,
			"trades_today":   st.Risk.TradesToday,
			"suspend_reason": st.Risk.SuspendReason,
			"breaker": gin.H{
				"state":              st.Risk.Breaker.State.String(),
				"consecutive_losses": st.Risk.Breaker.ConsecutiveLosses,
				"threshold":          st.Risk.Breaker.Threshold,
				"trips":              st.Risk.Breaker.Trips,
			},
		},
		"outcomes": gin.H{
			"trades":            st.Outcomes.Trades,
			"wins":              st.Outcomes.Wins,
			"losses":            st.Outcomes.Losses,
			"win_rate":          st.Outcomes.WinRate,
			"total_profit":      st.Outcomes.TotalProfit,
			"current_streak":    st.Outcomes.CurrentStreak,
			"trailing_win_rate": st.Outcomes.TrailingWinRate,
		},
		"weights": st.Weights,
		"stats": gin.H{
			"ticks_seen":       st.Stats.TicksSeen,
			"ticks_rejected":   st.Stats.TicksRejected,
			"extractor_errors": st.Stats.ExtractorErrors,
			"decisions":        st.Stats.Decisions,
			"no_trades":        st.Stats.NoTrades,
			"rejections":       st.Stats.Rejections,
			"outcomes_seen":    st.Stats.OutcomesSeen,
			"abandoned":        st.Stats.Abandoned,
			"last_tick_at":     st.Stats.LastTickAt,
			"last_decision_at": st.Stats.LastDecisionAt,
		},
	}
	if p := st.LastPrediction; p != nil {
		resp["last_prediction"] = gin.H{
			"digit":      p.Digit,
			"confidence": p.Confidence,
		}
	}
	if d := st.LastDecision; d != nil {
		resp["last_decision"] = gin.H{
			"id":         d.ID,
			"digit":      d.Digit,
			"direction":  d.Direction.String(),
			"stake":      d.Stake.StringFixed(2),
			"confidence": d.Confidence,
			"at":         d.At,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	views, err := r.journal.RecentDecisions(ctx, limit)
	if err != nil {
		r.log.Error("Decision query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": views, "count": len(views)})
}

func (r *Router) handleSummary(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易日志未启用"})
		return
	}
	day := time.Now().UTC()
	if raw := strings.TrimSpace(c.Query("day")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	summary, err := r.journal.Summarize(ctx, day)
	if err != nil {
		r.log.Error("Summary query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (r *Router) handleAlerts(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	alerts, err := r.journal.RecentAlerts(ctx, limit)
	if err != nil {
		r.log.Error("Alert query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (r *Router) handleParams(c *gin.Context) {
	category := strings.TrimSpace(c.Param("category"))
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category 不能为空"})
		return
	}
	var params map[string]interface{}
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(params) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty parameter set"})
		return
	}
	if err := r.params.ApplyParameters(category, params); err != nil {
		r.log.Warn("Parameter update rejected",
			zap.String("category", category),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.log.Info("Parameters updated",
		zap.String("category", category),
		zap.Any("params", params))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
