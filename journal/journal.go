package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"digit-trader-go/infrastructure/logger"
)

// DecisionRecord 对应 decisions 表，每行一笔已提交的交易决策。
// Stake 存原始十进制文本，聚合时再 CAST，避免浮点漂移进库。
type DecisionRecord struct {
	ID          int64   `gorm:"column:id;primaryKey;autoIncrement"`
	DecisionID  string  `gorm:"column:decision_id;uniqueIndex"`
	Symbol      string  `gorm:"column:symbol;index"`
	Digit       int     `gorm:"column:digit"`
	Direction   string  `gorm:"column:direction"`
	Stake       string  `gorm:"column:stake"`
	Confidence  float64 `gorm:"column:confidence"`
	Probability float64 `gorm:"column:probability"`
	Regime      string  `gorm:"column:regime"`
	Session     string  `gorm:"column:session"`
	DecidedAt   int64   `gorm:"column:decided_at;index"`
	CreatedAt   int64   `gorm:"column:created_at;autoCreateTime"`
}

func (DecisionRecord) TableName() string { return "decisions" }

// OutcomeRecord 对应 outcomes 表，每行一笔已结算的合约结果。
type OutcomeRecord struct {
	ID         int64   `gorm:"column:id;primaryKey;autoIncrement"`
	DecisionID string  `gorm:"column:decision_id;uniqueIndex"`
	Profit     float64 `gorm:"column:profit"`
	Won        bool    `gorm:"column:won"`
	SettledAt  int64   `gorm:"column:settled_at;index"`
	CreatedAt  int64   `gorm:"column:created_at;autoCreateTime"`
}

func (OutcomeRecord) TableName() string { return "outcomes" }

// AlertRecord 对应 alerts 表，保留风控与链路告警的历史。
type AlertRecord struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Level     string `gorm:"column:level" json:"level"`
	Message   string `gorm:"column:message" json:"message"`
	Details   string `gorm:"column:details" json:"details,omitempty"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (AlertRecord) TableName() string { return "alerts" }

// DecisionView 是决策与其结算结果的拼接视图，供 HTTP 接口与报表使用。
type DecisionView struct {
	DecisionID  string  `gorm:"column:decision_id" json:"decision_id"`
	Symbol      string  `gorm:"column:symbol" json:"symbol"`
	Digit       int     `gorm:"column:digit" json:"digit"`
	Direction   string  `gorm:"column:direction" json:"direction"`
	Stake       string  `gorm:"column:stake" json:"stake"`
	Confidence  float64 `gorm:"column:confidence" json:"confidence"`
	Probability float64 `gorm:"column:probability" json:"probability"`
	Regime      string  `gorm:"column:regime" json:"regime"`
	Session     string  `gorm:"column:session" json:"session"`
	DecidedAt   int64   `gorm:"column:decided_at" json:"decided_at"`
	Settled     bool    `gorm:"column:settled" json:"settled"`
	Won         bool    `gorm:"column:won" json:"won"`
	Profit      float64 `gorm:"column:profit" json:"profit"`
	SettledAt   int64   `gorm:"column:settled_at" json:"settled_at"`
}

// DailySummary 是某个 UTC 日的交易汇总。
type DailySummary struct {
	Day         string  `json:"day"`
	Trades      int64   `json:"trades"`
	Wins        int64   `json:"wins"`
	Losses      int64   `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	NetProfit   float64 `json:"net_profit"`
	TotalStaked float64 `json:"total_staked"`
	Unsettled   int64   `json:"unsettled"`
}

// Journal 把决策与结算写入 sqlite，供复盘与报表查询。
// 写失败只影响记录，不影响交易，调用方负责吞掉错误继续跑。
type Journal struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open 打开（必要时创建）journal 数据库。
func Open(path string, log *logger.Logger) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.AutoMigrate(&DecisionRecord{}, &OutcomeRecord{}, &AlertRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Journal{db: db, log: log}, nil
}

// Close 关闭底层连接。
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordDecision 落一笔决策。重复的 decision_id 幂等跳过，回放时会重现历史决策。
func (j *Journal) RecordDecision(ctx context.Context, rec *DecisionRecord) error {
	if rec == nil || rec.DecisionID == "" {
		return fmt.Errorf("decision record requires decision_id")
	}
	return j.db.WithContext(ctx).
		Where("decision_id = ?", rec.DecisionID).
		FirstOrCreate(rec).Error
}

// RecordOutcome 落一笔结算。重复结算幂等跳过。
func (j *Journal) RecordOutcome(ctx context.Context, rec *OutcomeRecord) error {
	if rec == nil || rec.DecisionID == "" {
		return fmt.Errorf("outcome record requires decision_id")
	}
	return j.db.WithContext(ctx).
		Where("decision_id = ?", rec.DecisionID).
		FirstOrCreate(rec).Error
}

// RecordAlert 落一笔告警。
func (j *Journal) RecordAlert(ctx context.Context, rec *AlertRecord) error {
	if rec == nil || rec.Message == "" {
		return fmt.Errorf("alert record requires message")
	}
	return j.db.WithContext(ctx).Create(rec).Error
}

// RecentAlerts 按时间倒序返回最近的告警。
func (j *Journal) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []AlertRecord
	err := j.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// RecentDecisions 按决策时间倒序返回最近的决策视图。
func (j *Journal) RecentDecisions(ctx context.Context, limit int) ([]DecisionView, error) {
	if limit <= 0 {
		limit = 50
	}
	var views []DecisionView
	err := j.db.WithContext(ctx).
		Table("decisions").
		Select(`decisions.decision_id, decisions.symbol, decisions.digit, decisions.direction,
			decisions.stake, decisions.confidence, decisions.probability, decisions.regime,
			decisions.session, decisions.decided_at,
			CASE WHEN outcomes.decision_id IS NULL THEN 0 ELSE 1 END AS settled,
			COALESCE(outcomes.won, 0) AS won,
			COALESCE(outcomes.profit, 0) AS profit,
			COALESCE(outcomes.settled_at, 0) AS settled_at`).
		Joins("LEFT JOIN outcomes ON outcomes.decision_id = decisions.decision_id").
		Order("decisions.decided_at DESC, decisions.id DESC").
		Limit(limit).
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

// Summarize 汇总某个 UTC 日的交易。day 只取日期部分。
func (j *Journal) Summarize(ctx context.Context, day time.Time) (DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	summary := DailySummary{Day: start.Format("2006-01-02")}

	var settled struct {
		Trades int64
		Wins   int64
		Net    float64
	}
	err := j.db.WithContext(ctx).
		Model(&OutcomeRecord{}).
		Select(`COUNT(*) AS trades,
			COALESCE(SUM(CASE WHEN won THEN 1 ELSE 0 END), 0) AS wins,
			COALESCE(SUM(profit), 0) AS net`).
		Where("settled_at >= ? AND settled_at < ?", start.Unix(), end.Unix()).
		Scan(&settled).Error
	if err != nil {
		return summary, err
	}
	summary.Trades = settled.Trades
	summary.Wins = settled.Wins
	summary.Losses = settled.Trades - settled.Wins
	summary.NetProfit = settled.Net
	if settled.Trades > 0 {
		summary.WinRate = float64(settled.Wins) / float64(settled.Trades)
	}

	var staked float64
	err = j.db.WithContext(ctx).
		Model(&DecisionRecord{}).
		Select("COALESCE(SUM(CAST(stake AS REAL)), 0)").
		Where("decided_at >= ? AND decided_at < ?", start.Unix(), end.Unix()).
		Scan(&staked).Error
	if err != nil {
		return summary, err
	}
	summary.TotalStaked = staked

	var unsettled int64
	err = j.db.WithContext(ctx).
		Table("decisions").
		Joins("LEFT JOIN outcomes ON outcomes.decision_id = decisions.decision_id").
		Where("outcomes.decision_id IS NULL AND decisions.decided_at >= ? AND decisions.decided_at < ?", start.Unix(), end.Unix()).
		Count(&unsettled).Error
	if err != nil {
		return summary, err
	}
	summary.Unsettled = unsettled
	return summary, nil
}
