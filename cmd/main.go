package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-membership-affiliate/config"
	userapp "github.com/oksasatya/go-membership-affiliate/internal/application"
	"github.com/oksasatya/go-membership-affiliate/internal/container"
	pginfra "github.com/oksasatya/go-membership-affiliate/internal/infrastructure/postgres"
	"github.com/oksasatya/go-membership-affiliate/internal/router"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
	"github.com/oksasatya/go-membership-affiliate/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()

	// Initialize Postgres pool
	pool, err := pginfra.NewPool(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	container.OnClose("postgres", func() error { pool.Close(); return nil })

	if err := pginfra.Migrate(pool, cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	// Redis backs sessions, verify tokens and rate limits; optional
	rdb, err := helpers.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		helpers.LogError(logger, "redis unavailable, sessions and rate limits disabled", err, logrus.Fields{"addr": cfg.RedisAddr})
	} else {
		container.OnClose("redis", rdb.Close)
	}

	// GCS for profile photos; optional
	if cfg.GCSBucket != "" {
		gcsClient, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.WithError(err).Fatal("failed to init GCS client")
		}
		container.OnClose("gcs", gcsClient.Close)
		container.SetGCS(gcsClient)
	}

	// RabbitMQ publisher for email jobs; the API keeps serving without it
	if cfg.MailSendEnabled {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			helpers.LogError(logger, "rabbitmq unavailable, emails will not be queued", err, logrus.Fields{"queue": cfg.RabbitMQEmailQueue})
		} else {
			container.OnClose("rabbitmq", pub.Close)
			container.SetMailPublisher(pub)
		}
	}

	// Elasticsearch for admin search; optional
	if len(cfg.ESAddrs) > 0 {
		es, err := helpers.NewESClient(cfg.ESAddrs, cfg.ESUser, cfg.ESPass)
		if err != nil {
			helpers.LogError(logger, "elasticsearch client init failed", err, nil)
		} else if err := helpers.EnsureUsersIndex(ctx, es, cfg.ESUsersIndex); err != nil {
			helpers.LogError(logger, "elasticsearch index unavailable, search disabled", err, logrus.Fields{"index": cfg.ESUsersIndex})
		} else {
			container.SetES(es)
		}
	}

	// JWT
	jwtManager := helpers.NewJWTManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)

	// Provide infra singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetPGPool(pool)
	container.SetRedis(rdb)
	container.SetJWT(jwtManager)

	r := router.NewEngine(cfg)

	// Registry: auto-register modules using container
	reg := router.NewRegistry(r, logger)
	svc, err := router.InitModules(reg)
	if err != nil {
		logger.WithError(err).Fatal("module wiring failed")
	}
	reg.RegisterAll()
	helpers.LogInfo(logger, "modules registered", logrus.Fields{"modules": reg.Modules()})

	sweeper, err := userapp.StartResetSweeper(svc, cfg.ResetSweepSchedule, logger)
	if err != nil {
		logger.WithError(err).WithField("schedule", cfg.ResetSweepSchedule).Fatal("invalid reset sweep schedule")
	}
	container.OnClose("reset-sweeper", func() error { sweeper.Stop(); return nil })

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		helpers.LogInfo(logger, "server starting", logrus.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if failed := container.Shutdown(); len(failed) > 0 {
		logger.WithField("components", failed).Warn("some components did not close cleanly")
		return
	}
	logger.Info("server exited properly")
}
