package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/flood-api/internal/analysis"
	"github.com/Brownie44l1/flood-api/internal/config"
	"github.com/Brownie44l1/flood-api/internal/handlers"
	"github.com/Brownie44l1/flood-api/internal/logger"
	"github.com/Brownie44l1/flood-api/internal/middleware"
	"github.com/Brownie44l1/flood-api/internal/model"
	"github.com/Brownie44l1/flood-api/internal/segment"
	"github.com/Brownie44l1/flood-api/internal/summary"
	"github.com/Brownie44l1/flood-api/internal/upload"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	log.Info("starting flood segmentation api",
		zap.String("version", handlers.Version),
		zap.String("unet_path", cfg.Models.UNetPath),
		zap.String("unetpp_path", cfg.Models.UNetPPPath))

	models, err := model.NewManager(model.Config{
		UNetPath:    cfg.Models.UNetPath,
		UNetPPPath:  cfg.Models.UNetPPPath,
		LibraryPath: cfg.Models.LibraryPath,
		InputName:   cfg.Models.InputName,
		OutputName:  cfg.Models.OutputName,
		Threshold:   cfg.Models.Threshold,
	}, log)
	if err != nil {
		log.Fatal("failed to load models", zap.Error(err))
	}
	defer models.Close()

	log.Info("models loaded", zap.String("device", models.Device()))

	styles, err := cfg.Styles()
	if err != nil {
		log.Fatal("invalid overlay styles", zap.Error(err))
	}
	analyzer := analysis.NewAnalyzer(
		summary.NewGenerator(model.UNet.Label(), model.UNetPP.Label(), cfg.Policy()),
		styles,
		log,
	)
	pipeline := segment.NewService(models.UNet(), models.UNetPP(), analyzer, segment.Options{
		MaxConcurrent: cfg.Inference.MaxConcurrent,
		QueueTimeout:  cfg.Inference.QueueTimeout,
		Timeout:       cfg.Inference.Timeout,
	}, log)

	handler := handlers.NewHandler(pipeline, models,
		upload.NewValidator(cfg.Upload.MaxSize, cfg.Upload.MaxPixels, cfg.Upload.AllowedExtensions), log)

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxSize
	r.Use(middleware.RequestIDMiddleware())
	r.Use(handler.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())
	handler.Register(r)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		log.Info("endpoints",
			zap.Strings("routes", []string{
				"GET  / - status",
				"GET  /health - health check",
				"GET  /api/models - model info",
				"POST /api/segment - analyze an upload with both models",
				"POST /segment?model=baseline|unetplus - single model mask",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
