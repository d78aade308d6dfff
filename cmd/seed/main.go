package main

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-membership-affiliate/config"
	pginfra "github.com/oksasatya/go-membership-affiliate/internal/infrastructure/postgres"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
)

const defaultAdminPassword = "changeme123"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	if cfg.IsProduction() && cfg.AdminPassword == defaultAdminPassword {
		logger.Fatal("ADMIN_PASSWORD must be changed before seeding production")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		logger.WithError(err).Fatal("failed to open db")
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := pginfra.SeedAdmin(ctx, db, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		logger.WithError(err).Fatal("failed to seed admin")
	}
	helpers.LogInfo(logger, "seeded admin account", logrus.Fields{"id": id, "email": cfg.AdminEmail})
}
