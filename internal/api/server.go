// Package api 实现博客后端的 HTTP 服务：路由注册、依赖装配与后台任务启动。
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"inkwell/internal/api/auth"
	"inkwell/internal/api/middleware"
	"inkwell/internal/api/scheduler"
	"inkwell/internal/config"
	"inkwell/internal/model"
	"inkwell/internal/pkg/dedup"
	"inkwell/internal/pkg/mailqueue"
	"inkwell/internal/pkg/metrics"
	"inkwell/internal/pkg/notify"
	"inkwell/internal/pkg/queue"
	"inkwell/internal/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Server 持有全部运行时依赖并对外提供 HTTP 服务。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db  *gorm.DB
	rdb *redis.Client

	router *gin.Engine

	authHandler *auth.Handler
	posts       postFinder
	postMut     postMutator
	engagement  engagementStore
	jobs        *queue.Queue
	limiter     *ratelimit.RateLimiter
	deduper     *dedup.Deduplicator
	notifier    notify.Notifier

	mailClient   *mailqueue.Client
	mailConsumer *mailqueue.Consumer
	sched        *scheduler.Scheduler

	stopBackground context.CancelFunc
}

// NewServer 装配所有依赖并注册路由。
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Post{},
		&model.Tag{},
		&model.PostTag{},
		&model.Comment{},
		&model.Like{},
		&model.Bookmark{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// 限流/去重/邮件队列都对 Redis 缺失做了降级，启动不因此失败
		logger.Warn("redis unavailable, rate limiting and dedup degraded",
			slog.String("addr", cfg.Redis.Addr), slog.String("error", err.Error()))
	}

	metrics.InitMetrics(cfg.App.WorkerPoolSize)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		posts:      &gormPostFinder{db: db},
		postMut:    &gormPostMutator{db: db},
		engagement: &gormEngagementStore{db: db},
		jobs:       queue.NewQueue(logger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity),
		limiter: ratelimit.NewRedisRateLimiter(rdb, logger,
			"inkwell:ratelimit:auth", cfg.App.RateLimit, cfg.App.RateBurst),
		deduper:  dedup.NewDeduplicator(rdb, 0),
		notifier: notify.NewEmailNotifier(&cfg.Email, logger),
	}

	if cfg.App.EnableMailQueue {
		client, err := mailqueue.NewClientWithRedis(rdb, cfg.App.MailQueueKey)
		if err != nil {
			return nil, fmt.Errorf("mail queue client: %w", err)
		}
		s.mailClient = client
		s.mailConsumer = mailqueue.NewConsumer(client, s.notifier, logger)
	}

	s.authHandler = auth.NewHandler(db, auth.Options{
		JWTSecret:      cfg.Security.JWTSecret,
		TokenTTL:       cfg.App.TokenTTL,
		OTPTTL:         cfg.App.OTPTTL,
		ResendCooldown: cfg.App.ResendCooldown,
		DevMode:        !cfg.IsProd(),
	}, s, logger)

	s.sched = scheduler.New(&gormMaintenanceStore{db: db}, s.jobs, scheduler.Options{
		Interval:       cfg.App.ScheduleInterval,
		CleanupOrphans: cfg.App.CleanupOrphanTags,
	}, logger)

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestLogger(logger))
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.registerRoutes()
	return s, nil
}

// DispatchVerification 把验证码邮件交给投递通道。
//
// 启用 Redis 邮件队列时入队（重复入队视为已在途，不算失败）；
// 否则丢进进程内 worker 池异步发送。
func (s *Server) DispatchVerification(email string, code string) error {
	if s.mailClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := s.mailClient.Push(ctx, &mailqueue.Message{
			ID:   "verify:" + email,
			Kind: mailqueue.KindVerification,
			To:   email,
			Code: code,
		})
		if errors.Is(err, mailqueue.ErrExists) {
			return nil
		}
		return err
	}

	if ok := s.jobs.Enqueue(func(ctx context.Context) error {
		return s.notifier.SendVerificationCode(email, code)
	}); !ok {
		return fmt.Errorf("job queue full")
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.Static("/static/uploads", s.cfg.App.UploadDir)

	jwtSecret := s.cfg.Security.JWTSecret
	authed := middleware.AuthMiddleware(jwtSecret)
	limited := middleware.RateLimitMiddleware(s.limiter, s.logger)
	api := s.router.Group("/api")

	authGroup := api.Group("/auth")
	{
		// 未认证入口按客户端 IP 限流
		authGroup.POST("/register", limited, s.authHandler.Register)
		authGroup.POST("/verify", limited, s.authHandler.Verify)
		authGroup.POST("/resend", limited, s.authHandler.ResendCode)
		authGroup.POST("/login", limited, s.authHandler.Login)

		authGroup.GET("/me", authed, s.authHandler.Me)
		authGroup.PUT("/me", authed, s.authHandler.UpdateProfile)
		authGroup.DELETE("/me", authed, s.authHandler.DeleteAccount)
		authGroup.POST("/change-password", authed, s.authHandler.ChangePassword)
		authGroup.POST("/logout", authed, s.authHandler.Logout)
	}

	posts := api.Group("/posts")
	{
		posts.GET("", s.listPosts)
		posts.GET("/my-posts", authed, s.listMyPosts)
		posts.GET("/:id", middleware.OptionalAuthMiddleware(jwtSecret), s.getPost)
		posts.POST("", authed, s.createPost)
		posts.PUT("/:id", authed, s.updatePost)
		posts.DELETE("/:id", authed, s.deletePost)

		posts.POST("/:id/like", authed, s.toggleLike)
		posts.GET("/:id/like-status", authed, s.likeStatus)
		posts.DELETE("/:id/like", authed, s.forceUnlike)
		posts.POST("/:id/bookmark", authed, s.toggleBookmark)
		posts.GET("/:id/bookmark-status", authed, s.bookmarkStatus)
		posts.DELETE("/:id/bookmark", authed, s.forceUnbookmark)
	}

	comments := api.Group("/comments")
	{
		comments.POST("", authed, s.createComment)
		comments.GET("/post/:id", middleware.OptionalAuthMiddleware(jwtSecret), s.listComments)
		comments.DELETE("/:id", authed, s.deleteComment)
	}

	api.GET("/tags", s.listTags)
	api.POST("/upload", authed, s.uploadFile)
}

// StartBackground 启动 worker 池、维护调度器与邮件消费者。
func (s *Server) StartBackground(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.stopBackground = cancel

	s.jobs.Start(ctx)
	go s.sched.Run(ctx)
	if s.mailConsumer != nil {
		go s.mailConsumer.Run(ctx)
	}

	if err := os.MkdirAll(s.cfg.App.UploadDir, 0755); err != nil {
		s.logger.Warn("create upload dir failed",
			slog.String("dir", s.cfg.App.UploadDir), slog.String("error", err.Error()))
	}
}

// Router 返回 gin 引擎（用于挂接 http.Server 或测试）。
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close 停止后台任务并释放连接。
func (s *Server) Close() {
	if s.stopBackground != nil {
		s.stopBackground()
	}
	if err := s.jobs.ShutdownWithTimeout(5 * time.Second); err != nil {
		s.logger.Warn("job queue shutdown", slog.String("error", err.Error()))
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// getUserID 从上下文取出认证中间件写入的用户 ID，0 表示匿名。
func getUserID(c *gin.Context) uint {
	v, exists := c.Get(middleware.ContextUserID)
	if !exists {
		return 0
	}
	if id, ok := v.(uint); ok {
		return id
	}
	return 0
}
