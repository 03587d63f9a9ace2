package router

import (
	app "github.com/shopease/auth-service/internal/application"
	"github.com/shopease/auth-service/internal/container"
	"github.com/shopease/auth-service/internal/domain/repository"
	pginfra "github.com/shopease/auth-service/internal/infrastructure/postgres"
	handlers "github.com/shopease/auth-service/internal/interface/http"
	"github.com/shopease/auth-service/internal/router/modules"
)

type AccountModuleDeps struct {
	Repo    repository.UserRepository
	Service *app.Service
	Handler *handlers.AccountHandler
}

func buildAccountDeps() AccountModuleDeps {
	repo := pginfra.NewUserRepository(container.GetPGPool())

	service := app.NewService(
		repo,
		container.GetJWT(),
		container.GetConfig(),
		container.GetRedis(),
		container.GetLogger(),
		container.GetRabbitPub(),
		container.GetGCS(),
		container.GetES(),
	)

	handler := handlers.NewAccountHandler(service, container.GetLogger())

	return AccountModuleDeps{Repo: repo, Service: service, Handler: handler}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	deps := buildAccountDeps()
	r.Add(modules.NewAccountModule(deps.Handler, deps.Repo, container.GetJWT()))
	r.Add(modules.NewDebugModule())
}
