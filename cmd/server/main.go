package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smart-student/grading-service/internal/cache"
	"github.com/smart-student/grading-service/internal/config"
	"github.com/smart-student/grading-service/internal/document"
	"github.com/smart-student/grading-service/internal/extraction"
	"github.com/smart-student/grading-service/internal/handlers"
	"github.com/smart-student/grading-service/internal/ocr"
	"github.com/smart-student/grading-service/internal/repositories/postgres"
	"github.com/smart-student/grading-service/internal/roster"
	"github.com/smart-student/grading-service/internal/scoring"
	"github.com/smart-student/grading-service/internal/services"
	"github.com/smart-student/grading-service/internal/utils"
	"github.com/smart-student/grading-service/internal/validator"
	"github.com/smart-student/grading-service/internal/vision"
	"github.com/smart-student/grading-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}
	slogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := pkg.MigrateSchema(db); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	cacheService := cache.NewRedisCache(redisClient, slogger)

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	casdoorProvider := roster.NewCasdoorProvider(roster.CasdoorConfig{
		Endpoint:     cfg.CasdoorEndpoint,
		ClientID:     cfg.CasdoorClientID,
		ClientSecret: cfg.CasdoorClientSecret,
		Certificate:  cfg.CasdoorCertificate,
		Organization: cfg.CasdoorOrganization,
		Application:  cfg.CasdoorApplication,
	}, logger)
	rosterProvider := roster.NewCachedProvider(casdoorProvider, cacheService, logger)

	var ocrEngine ocr.Engine
	if cfg.OCREnabled {
		ocrEngine = ocr.NewTesseractEngine(strings.Split(cfg.OCRLanguages, "+")...)
	}

	visionClient := vision.NewHTTPClient(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel, logger)

	serviceManager := services.NewServiceManager(services.ServiceManagerDeps{
		Repo:      postgres.NewRepository(db),
		Roster:    rosterProvider,
		Preparer:  document.NewPreparer(ocrEngine, nil, logger),
		Extractor: extraction.NewEngine(visionClient, logger),
		Scorer:    scoring.NewScorer(logger),
		Vision:    visionClient,
		Publisher: publisher,
		Logger:    slogger,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))
	router.MaxMultipartMemory = 32 << 20

	handlerManager := handlers.NewHandlerManager(serviceManager, validator.New(), logger)
	handlerManager.SetupRoutes(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting grading service", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}
