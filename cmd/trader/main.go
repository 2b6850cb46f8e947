package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"digit-trader-go/config"
	"digit-trader-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	symbol := flag.String("symbol", "", "覆盖配置中的交易标的（例如 R_100）")
	mode := flag.String("mode", "", "覆盖成交模式：paper 或 live")
	addr := flag.String("addr", "", "覆盖状态服务监听地址")
	noReload := flag.Bool("noReload", false, "关闭配置热更新")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *symbol != "" {
		cfg.Gateway.Symbol = *symbol
	}
	if *mode != "" {
		cfg.Trade.Mode = *mode
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	reloadPath := *cfgPath
	if *noReload {
		reloadPath = ""
	}
	c := container.New(cfg, reloadPath)
	if err := c.Build(); err != nil {
		log.Fatalf("构建容器失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdogLoop(ctx, c)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停机出错: %v", err)
	}
}

// watchdogLoop 按 systemd 看门狗周期喂狗，组件不健康时停止喂食，
// 让 systemd 按 WatchdogSec 判定并重启进程
func watchdogLoop(ctx context.Context, c *container.Container) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				log.Printf("健康检查失败，暂停喂狗: %v", err)
				continue
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
