package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"digit-trader-go/config"
	"digit-trader-go/gateway"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/market"
)

// 连通性探针：订阅一段行情并打印每跳的末位数字，验证端点、
// app_id 与令牌是否可用。带令牌时额外打印账户余额。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	symbol := flag.String("symbol", "", "覆盖配置中的标的")
	count := flag.Int("count", 10, "打印的 tick 数")
	timeout := flag.Duration("timeout", time.Minute, "整体超时")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *symbol != "" {
		cfg.Gateway.Symbol = *symbol
	}

	ws, err := gateway.NewDerivWS(gateway.WSConfig{
		Endpoint: cfg.Gateway.Endpoint,
		AppID:    cfg.Gateway.AppID,
		Token:    cfg.Gateway.Token,
		Symbol:   cfg.Gateway.Symbol,
		Logger:   logger.NewNop(),
	})
	if err != nil {
		log.Fatalf("初始化网关失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	h := &probeHandler{
		pip:  cfg.Gateway.PipDigits,
		want: *count,
		stop: cancel,
	}
	err = ws.Run(ctx, h)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalf("行情流异常: %v", err)
	}
	if h.seen == 0 {
		log.Fatalf("超时未收到任何 tick，检查端点与标的 %s", cfg.Gateway.Symbol)
	}

	if bal, ok := ws.Balance(); ok {
		fmt.Printf("balance=%.2f %s\n", bal, ws.Currency())
	} else {
		fmt.Println("anonymous connection, no balance")
	}
	st := ws.Stats()
	fmt.Printf("connects=%d reconnects=%d ticks=%d\n", st.Connects, st.Reconnects, st.TicksSeen)
}

// probeHandler 在读协程上打印行情，收满目标数量后取消上下文。
type probeHandler struct {
	pip  int32
	want int
	seen int
	stop context.CancelFunc
}

func (h *probeHandler) OnTick(ev gateway.TickEvent) {
	at := time.Unix(ev.Epoch, 0).UTC()
	tick, err := market.NewTick(ev.Quote, h.pip, at)
	if err != nil {
		fmt.Printf("%s  %s  解析失败: %v\n", at.Format("15:04:05"), ev.Quote, err)
		return
	}
	fmt.Printf("%s  %s  digit=%d\n", at.Format("15:04:05"), ev.Quote, tick.Digit)
	h.seen++
	if h.seen >= h.want {
		h.stop()
	}
}

func (h *probeHandler) OnContract(gateway.ContractUpdate) {}
