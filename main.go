package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"dice-server/common"
	"dice-server/common/logger"
	"dice-server/internal/config"
	"dice-server/internal/controller/api"
	"dice-server/internal/gateway"
	infmysql "dice-server/internal/infra/mysql"
	infrds "dice-server/internal/infra/redis"
	"dice-server/internal/notify"
	"dice-server/internal/poller"
	"dice-server/internal/service"
	"dice-server/internal/worker"
	"dice-server/routers"

	beego "github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 配置：Nacos 优先，本地文件兜底
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Printf("[Boot] 配置加载失败: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	logger.InitLogger()
	defer logger.Sync()
	logger.SetLevel(cfg.Server.LogLevel)

	// MySQL：连接失败直接退出
	db := common.InitDB(cfg.Database.DSN, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	infmysql.UseDB(db.DB)

	// Redis：可选依赖，不可用时降级运行（无结果缓存/幂等锁/限流）
	infrds.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if infrds.Client() != nil {
		if err := infrds.Ping(ctx, 3*time.Second); err != nil {
			logger.Warn("redis ping failed, continue without cache", zap.Error(err))
		}
	}

	// 支付网关
	gw := gateway.NewCryptoPayClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.Token,
		cfg.Gateway.Asset,
		time.Duration(cfg.Gateway.TimeoutSec)*time.Second,
	)

	// 通知器：默认仅记录日志；配置了 Telegram 且未开 dry_run 时走真实推送
	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.Notify.Enabled && cfg.Notify.TelegramToken != "" && !config.GetFeatureFlag("notify_dry_run") {
		if tn, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken); err != nil {
			logger.Warn("telegram notifier init failed, fallback to log", zap.Error(err))
		} else {
			notifier = tn
		}
	}

	// 业务服务
	roomSvc := service.NewRoomService(db, gw)
	settleSvc := service.NewSettleService(db)
	userSvc := service.NewUserService(db)
	adminSvc := service.NewAdminService(db, gw)

	// 支付轮询器：RoomService 同时充当存取层与超时处理器
	mgr := poller.NewManager(
		roomSvc,
		gw,
		settleSvc,
		roomSvc,
		time.Duration(cfg.Game.PollIntervalSec)*time.Second,
		cfg.Game.MaxPollAttempts,
	)
	roomSvc.SetPollerStarter(mgr)

	// 进程重启后恢复等待支付房间的轮询
	if err := mgr.Resume(ctx); err != nil {
		logger.Warn("resume payment pollers failed", zap.Error(err))
	}

	// Outbox 分发器
	var wg sync.WaitGroup
	worker.StartOutboxDispatcher(ctx, &wg, db, notifier)

	// Prometheus 指标端口（独立于业务端口）
	if cfg.Observability.EnableProm {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Observability.PromAddr, mux); err != nil {
				logger.Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	// HTTP 路由
	api.Init(roomSvc, userSvc, adminSvc)
	routers.Init()

	// 优雅退出：先停轮询器，再等 Outbox 分发器落盘
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
		mgr.Stop()
		wg.Wait()
		logger.Sync()
		os.Exit(0)
	}()

	logger.Info("dice-server starting", zap.Int("port", cfg.Server.Port))
	beego.Run(":" + strconv.Itoa(cfg.Server.Port))
}
