// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qps-ai/client/internal/document"
	"github.com/qps-ai/client/internal/metrics"
	"github.com/rs/zerolog"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Controller    SessionController
	Feed          ChangeFeed
	Notifier      Notifier
	Service       HealthChecker
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer // nil disables /metrics
	MaxUploadSize int64
	AllowedTypes  []string
	Version       string
	Logger        zerolog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Session   SessionHandler
	Upload    UploadHandler
	Solve     SolveHandler
	Clipboard ClipboardHandler
	Feed      FeedHandler
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	allowed := deps.AllowedTypes
	if allowed == nil {
		allowed = document.DefaultAccept
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Service),
		Session:   NewSessionHandler(deps.Controller, deps.Notifier),
		Upload:    NewUploadHandler(deps.Controller, deps.MaxUploadSize, allowed, deps.Logger),
		Solve:     NewSolveHandler(deps.Controller),
		Clipboard: NewClipboardHandler(deps.Controller, deps.Notifier),
		Feed:      NewFeedHandler(deps.Controller, deps.Feed, deps.Notifier, deps.Logger),
		metrics:   deps.Metrics,
		gatherer:  deps.Gatherer,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	if handlers.metrics != nil {
		e.Use(handlers.metrics.Middleware())
	}
	if handlers.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(handlers.gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/ws", handlers.Feed.HandleFeed)

	// Session
	apiGroup.POST("/upload", handlers.Upload.HandleUpload)
	apiGroup.GET("/session", handlers.Session.HandleGetSession)
	apiGroup.GET("/session/msgpack", handlers.Session.HandleGetSessionMsgpack)
	apiGroup.POST("/session/reset", handlers.Session.HandleResetSession)

	// Questions
	apiGroup.POST("/questions/:index/solve", handlers.Solve.HandleSolve)
	apiGroup.POST("/questions/:index/copy", handlers.Clipboard.HandleCopy)
	apiGroup.GET("/clipboard", handlers.Clipboard.HandleGetClipboard)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
