package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todolist/internal/bot"
	"todolist/internal/bot/session"
	"todolist/internal/config"
	"todolist/internal/goals"
	"todolist/internal/pkg/dedup"
	"todolist/internal/pkg/logger"
	"todolist/internal/pkg/metrics"
	"todolist/internal/pkg/ratelimit"
	"todolist/internal/pkg/taskqueue"
	"todolist/internal/pkg/tg"
	"todolist/internal/policy"
	"todolist/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是聊天机器人的入口函数。
//
// 它负责：
// 1. 加载 .env 与配置
// 2. 连接数据库与 Redis
// 3. 组装会话存储、限流、去重与轮询器
// 4. stream 模式下启动投递流消费者
// 5. 启动 Metrics 服务并在退出时优雅关闭
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Bot.Token == "" {
		log.Fatalf("bot token is required (BOT_TOKEN)")
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database)
	if err != nil {
		appLogger.Error("open database failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Error("connect redis failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rdb.Close()
	}

	var sessions session.Storage = session.NewMemoryStorage()
	if cfg.Bot.SessionBackend == "redis" {
		sessions = session.NewRedisStorage(rdb, cfg.Bot.SessionTTL)
	}

	limiter := ratelimit.NewSendLimiter(rdb, "",
		ratelimit.Bucket{Rate: cfg.Bot.SendRate, Burst: cfg.Bot.SendBurst},
		ratelimit.Bucket{Rate: cfg.Bot.ChatSendRate, Burst: cfg.Bot.ChatSendBurst})
	client := tg.NewClient(cfg.Bot.APIURL, cfg.Bot.Token, cfg.Bot.PollTimeout, tg.WithLimiter(limiter))

	var guard *dedup.UpdateGuard
	if rdb != nil {
		guard = dedup.NewUpdateGuard(rdb, cfg.Bot.DedupWindow)
	}

	st := store.New(db)
	svc := goals.NewService(st, policy.NewEngine(st), appLogger)
	handler := bot.NewHandler(svc, sessions, client, appLogger)
	poller := bot.NewPoller(client, st, handler, appLogger, bot.PollerOptions{
		MaxFailures: cfg.Bot.MaxPollFailures,
		Guard:       guard,
	})

	relayDone := make(chan struct{})
	if cfg.Bot.Delivery == "stream" {
		hostname, _ := os.Hostname()
		consumer, err := taskqueue.NewConsumer(ctx, rdb, appLogger, taskqueue.ConsumerConfig{
			Group:    "todolist-bot",
			Name:     hostname,
			MaxRetry: cfg.Bot.DeliveryMaxRetry,
		})
		if err != nil {
			appLogger.Error("init delivery consumer failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		go func() {
			defer close(relayDone)
			consumer.Relay(ctx, client, time.Second)
		}()
	} else {
		close(relayDone)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Bot.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("bot metrics server started", slog.String("addr", cfg.Bot.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	runErr := poller.Run(ctx)
	stop()
	<-relayDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}

	if runErr != nil {
		appLogger.Error("bot poller stopped", slog.String("error", runErr.Error()))
		cancel()
		os.Exit(1)
	}
	appLogger.Info("bot stopped gracefully")
}
