package stubserver

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osvaldoandrade/collageq/internal/middleware"
	"github.com/osvaldoandrade/collageq/internal/ratelimit"
	"github.com/osvaldoandrade/collageq/internal/tracing"
	"github.com/osvaldoandrade/collageq/pkg/config"
)

const (
	serviceName    = "collageq-stub"
	serviceVersion = "0.5.0"
)

// Server bundles everything the stub backend needs to run. The gin engine is
// left unstarted so tests can mount it on an httptest server.
type Server struct {
	Config          *config.Config
	Engine          *gin.Engine
	Store           *Store
	Limiter         ratelimit.Limiter
	Logger          *slog.Logger
	TracingShutdown func(context.Context) error
}

func New(cfg *config.Config, opts Options) (*Server, error) {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", serviceName, "env", cfg.Env)
	slog.SetDefault(logger)

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  tracing.ParseSampleRatio(cfg.TraceSampleRatio),
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed", "err", err)
	}
	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}

	store := NewStore(opts, NewLocalUploader(cfg.ArtifactsDir), logger, time.Now)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware(serviceName),
	)

	return &Server{
		Config:          cfg,
		Engine:          engine,
		Store:           store,
		Limiter:         ratelimit.NewTokenBucketLimiter(),
		Logger:          logger,
		TracingShutdown: shutdown,
	}, nil
}

// SetupRoutes mounts the API surface. Basic auth gates the /api group when
// credentials are configured; the mutating routes sit behind the token
// bucket.
func SetupRoutes(s *Server) {
	bucket := ratelimit.Bucket{
		RequestsPerMinute: s.Config.RateLimitPerMinute,
		BurstSize:         s.Config.RateLimitBurst,
	}

	s.Engine.GET("/", NewServiceInfoController().Handle)
	s.Engine.GET("/health", NewHealthController(s.Store).Handle)
	s.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Engine.Group("/api/collage", middleware.BasicAuth(s.Config.Username, s.Config.Password))
	{
		api.POST("/create", middleware.RateLimit(s.Limiter, bucket), NewCreateCollageController(s.Store, s.Config).Handle)
		api.GET("/status/:id", NewJobStatusController(s.Store).Handle)
		api.GET("/download/:id", NewDownloadController(s.Store).Handle)
		api.POST("/optimize-grid", NewOptimizeGridController().Handle)
		api.POST("/analyze-overlaps", NewAnalyzeOverlapsController(s.Config).Handle)
		api.GET("/jobs", NewListJobsController(s.Store).Handle)
		api.DELETE("/cleanup/:id", middleware.RateLimit(s.Limiter, bucket), NewCleanupJobController(s.Store).Handle)
	}
}
