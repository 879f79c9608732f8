package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/txsubstrate/platform/services/outboxworker/internal/config"
	"github.com/txsubstrate/platform/services/outboxworker/internal/svc"
)

var configFile = flag.String("f", "etc/outboxworker.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	c.MustSetUp()
	defer logx.Close()

	svcCtx := svc.NewServiceContext(c)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svcCtx.Scheduler.Start(runCtx); err != nil {
		panic(err)
	}
	if err := svcCtx.Housekeeper.Start(runCtx); err != nil {
		panic(err)
	}

	metricsAddr := fmt.Sprintf("%s:%d", c.Metrics.Host, c.Metrics.Port)
	metricsServer := &http.Server{Addr: metricsAddr, Handler: svcCtx.Metrics.Handler()}
	go func() {
		logx.Infof("outboxworker metrics listening at %s", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorf("outboxworker: metrics server stopped: %v", err)
		}
	}()

	fmt.Printf("Starting outboxworker (batch=%d parallelism=%d)...\n", c.Outbox.BatchSize, c.Outbox.Parallelism)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logx.Info("outboxworker: shutting down")
	cancel()
	svcCtx.Scheduler.Stop()
	svcCtx.Housekeeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
