package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/journal"
)

// 从 journal 数据库生成交易日报：当日汇总、最近决策与告警。
// 用法：
//
//	go run ./cmd/report -journal data/journal.db -day 2025-03-11 -last 20
func main() {
	journalPath := flag.String("journal", "data/journal.db", "journal 数据库路径")
	dayStr := flag.String("day", "", "统计的 UTC 日期 (YYYY-MM-DD，默认今天)")
	last := flag.Int("last", 10, "展示最近 N 笔决策，0 关闭")
	alerts := flag.Int("alerts", 5, "展示最近 N 条告警，0 关闭")
	flag.Parse()

	day := time.Now().UTC()
	if *dayStr != "" {
		parsed, err := time.Parse("2006-01-02", *dayStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 day 参数失败: %v\n", err)
			os.Exit(1)
		}
		day = parsed
	}

	j, err := journal.Open(*journalPath, logger.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开 journal 失败: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sum, err := j.Summarize(ctx, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "汇总失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("统计文件: %s\n", *journalPath)
	fmt.Printf("统计日期: %s (UTC)\n", sum.Day)
	fmt.Printf("结算笔数: %d\n", sum.Trades)
	fmt.Printf("胜 / 负: %d / %d\n", sum.Wins, sum.Losses)
	fmt.Printf("胜率: %.2f%%\n", sum.WinRate*100)
	fmt.Printf("净盈亏: %.2f\n", sum.NetProfit)
	fmt.Printf("总下注: %.2f\n", sum.TotalStaked)
	if sum.Unsettled > 0 {
		fmt.Printf("未结算: %d\n", sum.Unsettled)
	}

	if *last > 0 {
		views, err := j.RecentDecisions(ctx, *last)
		if err != nil {
			fmt.Fprintf(os.Stderr, "查询决策失败: %v\n", err)
			os.Exit(1)
		}
		if len(views) > 0 {
			fmt.Printf("\n最近 %d 笔决策:\n", len(views))
			for _, v := range views {
				at := time.Unix(v.DecidedAt, 0).UTC().Format("01-02 15:04:05")
				result := "open"
				if v.Settled {
					if v.Won {
						result = fmt.Sprintf("win %+.2f", v.Profit)
					} else {
						result = fmt.Sprintf("loss %+.2f", v.Profit)
					}
				}
				fmt.Printf("  %s  %s digit=%d %s stake=%s conf=%.1f%% [%s/%s]  %s\n",
					at, v.Symbol, v.Digit, v.Direction, v.Stake, v.Confidence,
					v.Regime, v.Session, result)
			}
		}
	}

	if *alerts > 0 {
		recs, err := j.RecentAlerts(ctx, *alerts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "查询告警失败: %v\n", err)
			os.Exit(1)
		}
		if len(recs) > 0 {
			fmt.Printf("\n最近 %d 条告警:\n", len(recs))
			for _, a := range recs {
				at := time.Unix(a.CreatedAt, 0).UTC().Format("01-02 15:04:05")
				fmt.Printf("  %s  [%s] %s\n", at, a.Level, a.Message)
				if a.Details != "" {
					fmt.Printf("              %s\n", a.Details)
				}
			}
		}
	}
}
