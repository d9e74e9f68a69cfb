package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhukovvlad/residence-go/cmd/internal/config"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/auth"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

// Importer - конвейер импорта глазами HTTP-слоя.
type Importer interface {
	Validate(filename string, data []byte) (*importer.DryRun, error)
	Run(ctx context.Context, req importer.RunRequest, onProgress importer.ProgressFunc) (*importer.RunOutcome, error)
}

// ProgressReader отдаёт снимки запусков. nil, если Redis не настроен.
type ProgressReader interface {
	Get(ctx context.Context, runID string) (*importer.RunProgress, error)
}

type Server struct {
	router         *gin.Engine
	logger         *logging.Logger
	importer       Importer
	progress       ProgressReader
	tokens         *auth.TokenService
	maxUploadBytes int64
	config         *config.Config

	// Фоновые импорты (async=true).
	runs      sync.WaitGroup
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func NewServer(
	importService Importer,
	progress ProgressReader,
	logger *logging.Logger,
	cfg *config.Config,
) *Server {
	server := &Server{
		logger:         logger,
		importer:       importService,
		progress:       progress,
		tokens:         auth.NewTokenService(cfg.Auth.JWTSecret),
		maxUploadBytes: cfg.Import.MaxUploadBytes,
		config:         cfg,
	}
	server.runCtx, server.cancelRun = context.WithCancel(context.Background())
	if server.maxUploadBytes <= 0 {
		server.maxUploadBytes = defaultMaxUploadBytes
	}

	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// Настройка CORS
	corsConfig := cors.DefaultConfig()
	if cfg.Debug() {
		corsConfig.AllowOrigins = []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}
	} else if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	} else {
		// В production CORS origins должны быть явно настроены
		logger.Warn("CORS allowed_origins not configured in production - using restrictive default")
		corsConfig.AllowOrigins = []string{}
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Disposition", "Location", "X-Import-Run-Id"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", server.healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(server.tokens))
	{
		v1.GET("/students/import/template", server.templateHandler)

		uploads := v1.Group("/students/import")
		uploads.Use(OperatorRateLimitMiddleware(cfg.RateLimit.UploadsPerMinute))
		{
			uploads.POST("/validate", server.validateImportHandler)
			uploads.POST("", server.importStudentsHandler)
		}

		v1.GET("/imports/:run_id/progress", server.importProgressHandler)
	}

	server.router = router
	return server
}

// Handler exposes the router (tests, custom http.Server).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown останавливает фоновые импорты после текущей группы и ждёт их,
// пока не истечёт ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRun()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}
