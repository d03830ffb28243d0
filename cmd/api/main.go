package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/config"
	"presence/internal/face"
	"presence/internal/handler"
	"presence/internal/httpmiddleware"
	"presence/internal/logging"
	"presence/internal/model"
	"presence/internal/queue"
	"presence/internal/session"
	"presence/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	if err := seedFence(ctx, s, cfg); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Client.Close()

	var audit queue.Queue
	if cfg.QueueBackend == "memory" {
		audit = queue.NewInMemory(256)
	} else {
		audit = queue.NewRedisQueue(redisClient.Client, "presence:audit")
	}

	faces := face.NewClient(cfg.FaceServiceURL, cfg.FaceThreshold, cfg.FaceSkip, cfg.OpTimeout)
	guard := session.NewGuard(s, cfg.JWTSigningKey, cfg.JWTIssuer, cfg.SessionTTL, cfg.OpTimeout, log)
	pipe := attendance.NewPipeline(s, faces, guard, audit, log, cfg.OpTimeout)

	go guard.RunSweeper(ctx, cfg.SweepInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Gin())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		faceHealthy := faces.Health(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !faceHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "face": faceHealthy})
	})

	handler.New(s, pipe, guard, faces, log).Register(r.Group("/v1"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// openStore picks Postgres when DATABASE_URL is set and reachable, otherwise
// an in-memory store seeded with a demo account so the API is usable offline.
func openStore(ctx context.Context, cfg config.App, log *zap.Logger) (store.Store, func()) {
	if cfg.DatabaseURL != "" {
		db, err := store.OpenDB(ctx, cfg.DatabaseURL)
		if err == nil {
			pg := store.NewPostgres(db)
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Fatal("schema migration failed", zap.Error(err))
			}
			log.Info("using postgres store")
			return pg, func() { _ = db.Close() }
		}
		log.Warn("db not reachable, falling back to memory store", zap.Error(err))
	}

	mem := store.NewMemory()
	if err := seedDemo(ctx, mem); err != nil {
		log.Warn("demo seed failed", zap.Error(err))
	}
	log.Info("using in-memory store")
	return mem, func() {}
}

// seedFence ensures the default fence exists so check-ins work out of the box.
// An admin-updated fence is never overwritten.
func seedFence(ctx context.Context, s store.Store, cfg config.App) error {
	existing, err := s.GetFence(ctx, model.DefaultFenceID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.PutFence(ctx, &model.GeoFence{
		ID:           model.DefaultFenceID,
		CenterLat:    cfg.FenceLat,
		CenterLng:    cfg.FenceLng,
		RadiusMeters: cfg.FenceRadius,
		UpdatedAt:    time.Now().UTC(),
	})
}

func seedDemo(ctx context.Context, s store.Store) error {
	hash, err := auth.HashPassword("demo-password")
	if err != nil {
		return err
	}
	return s.CreateActor(ctx, &model.Actor{
		ID:           "demo-admin",
		Name:         "Demo Admin",
		Email:        "admin@demo.local",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Active:       true,
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
