package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chartforge/render-engine/internal/common/config"
	logutil "github.com/chartforge/render-engine/internal/common/logger"
	"github.com/chartforge/render-engine/internal/common/metricsserver"
	"github.com/chartforge/render-engine/internal/render/browser"
	"github.com/chartforge/render-engine/internal/render/executor"
	"github.com/chartforge/render-engine/internal/render/metrics"
	"github.com/chartforge/render-engine/internal/render/service"
)

func main() {
	configPath := flag.String("c", "configs/render-service.yaml",
		"Path to render service configuration file")
	flag.Parse()

	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("invalid config path", zap.Error(err))
	}

	configMgr, err := config.NewRSConfigManager(absPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("failed to load configuration", zap.Error(err))
	}
	cfg := configMgr.GetConfig()

	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger

	logger.Info("render service starting",
		zap.String("listen", cfg.Server.Listen()),
		zap.Int("permits", cfg.Permits))

	browserCfg := &browser.Config{
		MinSize:             cfg.Browser.MinSize,
		MaxSize:             cfg.Browser.MaxSize,
		WarmupURL:           cfg.Browser.Warmup.URL,
		WarmupTimeout:       time.Duration(cfg.Browser.Warmup.Timeout),
		ShutdownTimeout:     time.Duration(cfg.Browser.ShutdownTimeout),
		ScaleUsageThreshold: cfg.Browser.ScaleUsageThreshold,
	}

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		metricsCollector,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to start metrics server", zap.Error(err))
	}

	logger.Info("initializing browser pool")
	pool, err := browser.NewPool(browserCfg, logger)
	if err != nil {
		logger.Fatal("failed to create browser pool", zap.Error(err))
	}
	logger.Info("browser pool initialized", zap.Int("current_size", pool.CurrentSize()))

	exec := executor.New(pool, cfg.Permits, logger)
	facade := service.NewFacade(exec, pool, logger)

	httpHandler := service.CreateHTTPHandler(facade, metricsCollector, logger, cfg.Server.Prefix)
	serverTimeout := cfg.Browser.Render.CalculateServerTimeout()

	httpServer := &fasthttp.Server{
		Handler:      httpHandler,
		ReadTimeout:  serverTimeout,
		WriteTimeout: serverTimeout,
		IdleTimeout:  serverTimeout,
		Name:         "chart-render-engine",
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("listen", cfg.Server.Listen()))
		if err := httpServer.ListenAndServe(cfg.Server.Listen()); err != nil {
			serverErrCh <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-serverErrCh:
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	default:
	}

	dynamicLogger.SwitchToConfiguredLevel()
	logger.Info("render service ready", zap.String("listen", cfg.Server.Listen()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("shutting down gracefully")

	if metricsServer != nil {
		metricsShutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(metricsShutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}

	// Stop accepting new HTTP connections and let in-flight requests finish
	// before tearing down the pool, so no render is mid-flight when its
	// browser instance is closed out from under it.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Browser.ShutdownTimeout))
	defer cancel()
	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	pool.Shutdown()

	logger.Info("render service stopped")
}
