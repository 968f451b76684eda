package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/qps-ai/client/internal/api"
	"github.com/qps-ai/client/internal/clipboard"
	"github.com/qps-ai/client/internal/config"
	"github.com/qps-ai/client/internal/logging"
	"github.com/qps-ai/client/internal/metrics"
	"github.com/qps-ai/client/internal/session"
	"github.com/qps-ai/client/internal/solver"
	"github.com/rs/zerolog/log"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "qps.yaml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat)
	api.ExposeErrorDetails = cfg.Advanced.LogLevel == "debug"

	maxUpload, err := cfg.MaxUploadBytes()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var (
		m   *metrics.Metrics
		reg *prometheus.Registry
	)
	if cfg.Advanced.EnableMetrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	client, err := solver.NewClient(cfg.SolverConfig(),
		solver.WithMetrics(m),
		solver.WithLogger(logging.Component("solver")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create service client")
	}

	store := session.NewStore()
	notifier := clipboard.NewNotifier(
		clipboard.WithLogger(logging.Component("clipboard")),
		clipboard.WithObserver(func(int, bool) { store.Touch() }),
	)
	ctrl := session.NewController(store, client,
		session.WithFeedback(notifier),
		session.WithMetrics(m),
		session.WithLogger(logging.Component("session")),
	)

	deps := &api.Dependencies{
		Controller:    ctrl,
		Feed:          store,
		Notifier:      notifier,
		Service:       client,
		Metrics:       m,
		MaxUploadSize: maxUpload,
		AllowedTypes:  cfg.AllowedTypes(),
		Version:       Version,
		Logger:        logging.Component("api"),
	}
	if reg != nil {
		deps.Gatherer = reg
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/metrics" || path == "/api/session"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(deps))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Question Paper Solver                           ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Service:   %-46s║\n", client.BaseURL())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	notifier.Cancel()
	ctrl.Close()
}
