package main

import (
	"flag"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"digit-trader-go/sim"
)

// 本地蒙特卡洛模拟：用合成随机漫步行情驱动完整决策回路，
// 多个种子并行跑，观察策略在均匀或带偏末位分布下的盈亏分布。
// 不连接任何网关，结果只打印到标准输出。
func main() {
	symbol := flag.String("symbol", "R_100", "模拟标的名称")
	strategy := flag.String("strategy", "differ", "方向策略 match/differ")
	sessions := flag.Int("sessions", 4, "并行会话数，每个会话一个种子")
	ticks := flag.Int("ticks", 5000, "每个会话的 tick 数")
	seed := flag.Int64("seed", 1, "起始种子，第 i 个会话使用 seed+i")
	parallel := flag.Int("parallel", 0, "并发上限，0 表示不限制")
	balance := flag.Float64("balance", 1000, "初始余额")
	payout := flag.Float64("payout", 0.95, "赔付率")
	hotDigit := flag.Int("hotDigit", 0, "热点数字 0-9")
	hotBias := flag.Float64("hotBias", 0, "末位改写为热点数字的概率，0 表示均匀分布")
	stopLoss := flag.Float64("stopLoss", 0, "会话止损阈值，0 关闭")
	takeProfit := flag.Float64("takeProfit", 0, "会话止盈阈值，0 关闭")
	flag.Parse()

	if *sessions <= 0 {
		log.Fatal("sessions 必须为正数")
	}

	results := make([]sim.Result, *sessions)
	var g errgroup.Group
	if *parallel > 0 {
		g.SetLimit(*parallel)
	}
	for i := 0; i < *sessions; i++ {
		g.Go(func() error {
			r, err := sim.BuildRunner(sim.RunnerConfig{
				Symbol:            *symbol,
				Seed:              *seed + int64(i),
				Strategy:          *strategy,
				HotDigit:          *hotDigit,
				HotBias:           *hotBias,
				InitialBalance:    *balance,
				PayoutRatio:       *payout,
				SessionStopLoss:   *stopLoss,
				SessionTakeProfit: *takeProfit,
			})
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			res, err := r.Run(*ticks)
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("模拟失败: %v", err)
	}

	var trades, wins int
	var totalPnL float64
	best, worst := results[0].PnL, results[0].PnL
	for _, res := range results {
		fmt.Printf("seed=%-4d decisions=%-4d trades=%-4d winRate=%5.1f%% pnl=%+9.2f balance=%9.2f unsettled=%d\n",
			res.Seed, res.Decisions, res.Trades, res.WinRate*100, res.PnL, res.Balance, res.Unsettled)
		trades += res.Trades
		wins += res.Wins
		totalPnL += res.PnL
		if res.PnL > best {
			best = res.PnL
		}
		if res.PnL < worst {
			worst = res.PnL
		}
	}

	winRate := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades) * 100
	}
	fmt.Printf("sessions=%d ticks=%d strategy=%s hotBias=%.2f\n", *sessions, *ticks, *strategy, *hotBias)
	fmt.Printf("total trades=%d winRate=%.1f%% meanPnl=%+.2f best=%+.2f worst=%+.2f\n",
		trades, winRate, totalPnL/float64(*sessions), best, worst)
}
