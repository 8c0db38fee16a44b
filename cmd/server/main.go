package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"cardledger/docs"
	"cardledger/internal/cache"
	"cardledger/internal/clock"
	"cardledger/internal/config"
	"cardledger/internal/db"
	"cardledger/internal/handler"
	"cardledger/internal/logger"
	"cardledger/internal/metrics"
	"cardledger/internal/pan"
	"cardledger/internal/repository"
	"cardledger/internal/router"
	"cardledger/internal/scheduler"
	"cardledger/internal/service"
)

const shutdownTimeout = 15 * time.Second

// @title Card Ledger API
// @version 1.0
// @description Bank card ledger with encrypted card numbers, transfers and block requests.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.LogLevel)

	masterKey, err := pan.ParseMasterKey(cfg.PANMasterKey)
	if err != nil {
		log.WithError(err).Fatal("parse PAN master key")
	}
	cipher, err := pan.NewCipher(masterKey)
	if err != nil {
		log.WithError(err).Fatal("init PAN cipher")
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("database init")
	}
	if err := db.Migrate(gormDB); err != nil {
		log.WithError(err).Fatal("auto-migrate")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := cacheClient.Ping(pingCtx); err != nil {
		log.WithError(err).Warn("redis unavailable, card cache disabled until it recovers")
	}
	cancelPing()

	m := metrics.New(prometheus.DefaultRegisterer)
	store := repository.NewStore(gormDB)

	deps := service.Deps{
		Store:    store,
		Cipher:   cipher,
		Cache:    cacheClient,
		CacheTTL: cfg.CardCacheTTL,
		Clock:    clock.RealClock{},
		Metrics:  m,
		Logger:   log,
	}
	userService := service.NewUserService(store.Repos().Users, cacheClient)
	cardService := service.NewCardService(deps)
	transferService := service.NewTransferService(deps)
	blockRequestService := service.NewBlockRequestService(deps)

	sweeper, err := scheduler.New(cardService, cfg.ExpirySweepSchedule, log)
	if err != nil {
		log.WithError(err).Fatal("init scheduler")
	}

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, prometheus.DefaultGatherer, router.Handlers{
		User:         handler.NewUserHandler(userService),
		Card:         handler.NewCardHandler(cardService),
		Transfer:     handler.NewTransferHandler(transferService),
		BlockRequest: handler.NewBlockRequestHandler(blockRequestService),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper.Start()

	go func() {
		addr := ":" + cfg.ServerPort
		log.WithFields(logrus.Fields{
			"addr":    addr,
			"swagger": "http://" + docs.SwaggerInfo.Host + "/swagger/index.html",
		}).Info("server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server start")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	sweeper.Stop(shutdownCtx)
}
