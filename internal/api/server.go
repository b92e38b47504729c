package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"todolist/internal/api/auth"
	"todolist/internal/api/middleware"
	"todolist/internal/api/scheduler"
	"todolist/internal/config"
	"todolist/internal/goals"
	"todolist/internal/pkg/metrics"
	"todolist/internal/pkg/notify"
	"todolist/internal/pkg/outbox"
	"todolist/internal/pkg/ratelimit"
	"todolist/internal/pkg/taskqueue"
	"todolist/internal/pkg/tg"
	"todolist/internal/policy"
	"todolist/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、业务服务、出站消息队列以及 Gin 路由引擎。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	store  *store.Store
	goals  *goals.Service
	auth   *auth.Handler
	tokens *auth.Tokens
	outbox *outbox.Outbox // direct 模式下的进程内队列
	queue  messageQueue   // 出站消息入口，未配置时为 nil
	sched  *scheduler.Scheduler
}

// messageQueue 出站聊天消息的入口，由 outbox.Outbox 或 taskqueue.Producer 实现。
type messageQueue interface {
	Enqueue(msg outbox.Message) bool
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 打开数据库并执行自动迁移
// 2. 连接 Redis（用于令牌注销与发送限流）
// 3. 按投递方式创建出站消息队列（进程内或 Redis Streams）
// 4. 有聊天或邮件渠道时创建到期提醒调度器
// 5. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			closeDB(db)
			return nil, err
		}
	}

	var sender outbox.Sender
	if cfg.Bot.Delivery == "stream" {
		logger.Info("chat notifications go through the delivery stream")
	} else if cfg.Bot.Token != "" {
		limiter := ratelimit.NewSendLimiter(rdb, "",
			ratelimit.Bucket{Rate: cfg.Bot.SendRate, Burst: cfg.Bot.SendBurst},
			ratelimit.Bucket{Rate: cfg.Bot.ChatSendRate, Burst: cfg.Bot.ChatSendBurst})
		sender = tg.NewClient(cfg.Bot.APIURL, cfg.Bot.Token, cfg.Bot.PollTimeout, tg.WithLimiter(limiter))
	} else {
		logger.Warn("bot token not configured, chat notifications disabled")
	}

	metrics.InitMetrics()
	return newServer(cfg, logger, db, rdb, sender), nil
}

// newServer 组装依赖并注册路由。
//
// stream 模式下出站消息写入 Redis Streams，由机器人进程发送；
// 否则 sender 非 nil 时使用进程内 outbox。
func newServer(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client, sender outbox.Sender) *Server {
	st := store.New(db)
	svc := goals.NewService(st, policy.NewEngine(st), logger)
	tokens := auth.NewTokens(cfg.Security.JWTSecret, cfg.App.TokenTTL, rdb)

	var box *outbox.Outbox
	var queue messageQueue
	switch {
	case cfg.Bot.Delivery == "stream" && rdb != nil:
		queue = taskqueue.NewProducer(rdb, logger)
	case sender != nil:
		box = outbox.New(logger, sender, cfg.Bot.OutboxWorkers, cfg.Bot.OutboxCapacity)
		queue = box
	}
	var notifier notify.Notifier
	if cfg.Email.Enabled() {
		notifier = notify.NewEmailNotifier(cfg.Email, logger)
	}
	var sched *scheduler.Scheduler
	if cfg.Bot.ReminderInterval > 0 && (queue != nil || notifier != nil) {
		sched = scheduler.NewScheduler(st, queue, notifier, rdb, logger, cfg.Bot.ReminderInterval, cfg.Bot.ReminderLead)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		router: r,
		store:  st,
		goals:  svc,
		auth:   auth.NewHandler(st, tokens, logger),
		tokens: tokens,
		outbox: box,
		queue:  queue,
		sched:  sched,
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动后台组件：出站消息 worker 与到期提醒调度。
func (s *Server) Start(ctx context.Context) {
	if s.outbox != nil {
		s.outbox.Start(ctx)
	}
	if s.sched != nil {
		go s.sched.Run(ctx)
	}
}

// Shutdown 在超时内投递完队列中剩余的消息。
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Shutdown(timeout)
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	authMW := middleware.AuthMiddleware(s.tokens, s.logger)

	core := s.router.Group("/core")
	core.POST("/signup", s.auth.Signup)
	core.POST("/login", s.auth.Login)
	coreAuthed := core.Group("", authMW)
	coreAuthed.GET("/profile", s.auth.Profile)
	coreAuthed.PUT("/profile", s.auth.UpdateProfile)
	coreAuthed.PATCH("/profile", s.auth.UpdateProfile)
	coreAuthed.DELETE("/profile", s.auth.Logout)
	coreAuthed.PUT("/update_password", s.auth.UpdatePassword)
	coreAuthed.PATCH("/update_password", s.auth.UpdatePassword)

	g := s.router.Group("/goals", authMW)
	g.POST("/board/create", s.handleCreateBoard)
	g.GET("/board/list", s.handleListBoards)
	g.GET("/board/:id", s.handleGetBoard)
	g.PUT("/board/:id", s.handleUpdateBoard)
	g.PATCH("/board/:id", s.handleUpdateBoard)
	g.DELETE("/board/:id", s.handleDeleteBoard)

	g.POST("/goal_category/create", s.handleCreateCategory)
	g.GET("/goal_category/list", s.handleListCategories)
	g.GET("/goal_category/:id", s.handleGetCategory)
	g.PUT("/goal_category/:id", s.handleUpdateCategory)
	g.PATCH("/goal_category/:id", s.handleUpdateCategory)
	g.DELETE("/goal_category/:id", s.handleDeleteCategory)

	g.POST("/goal/create", s.handleCreateGoal)
	g.GET("/goal/list", s.handleListGoals)
	g.GET("/goal/:id", s.handleGetGoal)
	g.PUT("/goal/:id", s.handleUpdateGoal)
	g.PATCH("/goal/:id", s.handleUpdateGoal)
	g.DELETE("/goal/:id", s.handleDeleteGoal)

	g.POST("/goal_comment/create", s.handleCreateComment)
	g.GET("/goal_comment/list", s.handleListComments)
	g.GET("/goal_comment/:id", s.handleGetComment)
	g.PUT("/goal_comment/:id", s.handleUpdateComment)
	g.PATCH("/goal_comment/:id", s.handleUpdateComment)
	g.DELETE("/goal_comment/:id", s.handleDeleteComment)

	bot := s.router.Group("/bot", authMW)
	bot.PATCH("/verify", s.handleVerifyBot)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
