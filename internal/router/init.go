package router

import (
	userapp "github.com/oksasatya/go-membership-affiliate/internal/application"
	"github.com/oksasatya/go-membership-affiliate/internal/container"
	repouser "github.com/oksasatya/go-membership-affiliate/internal/domain/repository"
	pginfra "github.com/oksasatya/go-membership-affiliate/internal/infrastructure/postgres"
	handlers "github.com/oksasatya/go-membership-affiliate/internal/interface/http"
	"github.com/oksasatya/go-membership-affiliate/internal/router/modules"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
)

type UserModuleDeps struct {
	Repo    repouser.UserRepository
	Service *userapp.Service
	Users   *handlers.UserHandler
	Auth    *handlers.AuthHandler
	Admin   *handlers.AdminHandler
}

func buildUserDeps() UserModuleDeps {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	repo := pginfra.NewUserRepository(container.GetPGPool())

	deps := userapp.Deps{
		Repo:         repo,
		JWT:          container.GetJWT(),
		Cfg:          cfg,
		Redis:        container.GetRedis(),
		ES:           container.GetES(),
		ESUsersIndex: cfg.ESUsersIndex,
		Logger:       logger,
	}
	// Optional infra stays a nil interface when absent.
	if pub := container.GetMailPublisher(); pub != nil {
		deps.Mail = pub
	}
	if gcs := container.GetGCS(); gcs != nil && cfg.GCSBucket != "" {
		deps.Photos = &helpers.GCSStore{Client: gcs, Bucket: cfg.GCSBucket}
	}
	service := userapp.NewService(deps)

	return UserModuleDeps{
		Repo:    repo,
		Service: service,
		Users:   handlers.NewUserHandler(service, logger, cfg.CookieDomain, cfg.CookieSecure),
		Auth:    handlers.NewAuthHandler(service, logger),
		Admin:   handlers.NewAdminHandler(service, logger),
	}
}

// InitModules builds the account service from the container and queues every
// feature module on r. The service is returned so the caller can schedule
// background jobs on it.
func InitModules(r *Registry) (*userapp.Service, error) {
	d := buildUserDeps()
	jwt := container.GetJWT()
	mods := []Module{
		modules.NewUserModule(d.Users, jwt),
		modules.NewAuthModule(d.Auth, jwt),
		modules.NewAdminModule(d.Admin, jwt),
	}
	if container.GetConfig().DebugMetricsEnabled {
		mods = append(mods, modules.NewDebugModule())
	}
	for _, m := range mods {
		if err := r.Add(m); err != nil {
			return nil, err
		}
	}
	return d.Service, nil
}
