package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/shopease/auth-service/internal/container"
	"github.com/shopease/auth-service/internal/domain/entity"
	"github.com/shopease/auth-service/internal/domain/repository"
	handlers "github.com/shopease/auth-service/internal/interface/http"
	"github.com/shopease/auth-service/internal/interface/middleware"
	"github.com/shopease/auth-service/pkg/helpers"
)

// AccountModule wires the account routes under /auth. Everything in the
// group shares one IP-based rate limit; the protected subgroup adds the
// bearer-token gate and the search route adds a role check on top.
type AccountModule struct {
	Handler *handlers.AccountHandler
	Repo    repository.UserRepository
	JWT     *helpers.JWTManager
}

func NewAccountModule(h *handlers.AccountHandler, repo repository.UserRepository, jwt *helpers.JWTManager) *AccountModule {
	return &AccountModule{Handler: h, Repo: repo, JWT: jwt}
}

func (m *AccountModule) Register(rg *gin.RouterGroup) {
	cfg := container.GetConfig()
	limiter := middleware.RateLimit(
		container.GetRedis(),
		cfg.RateLimitMax,
		cfg.RateLimitWindow,
		middleware.KeyByIP(),
		middleware.AllowPrivateIP(),
	)

	auth := rg.Group("/auth")
	auth.Use(limiter)

	auth.POST("/register", m.Handler.Register)
	auth.POST("/login", m.Handler.Login)
	auth.POST("/forgot-password", m.Handler.ForgotPassword)
	auth.POST("/reset-password/:token", m.Handler.ResetPassword)

	protected := auth.Group("/")
	protected.Use(middleware.Auth(m.Repo, m.JWT))
	{
		protected.GET("/profile", m.Handler.GetProfile)
		protected.PATCH("/profile", m.Handler.UpdateProfile)
		protected.POST("/profile/picture", m.Handler.UploadProfilePicture)
		protected.POST("/change-password", m.Handler.ChangePassword)
		protected.POST("/logout", m.Handler.Logout)

		protected.POST("/address", m.Handler.AddAddress)
		protected.PATCH("/address/:addressId", m.Handler.UpdateAddress)
		protected.DELETE("/address/:addressId", m.Handler.DeleteAddress)

		staff := protected.Group("/")
		staff.Use(middleware.RequireRoles(entity.RoleAdmin, entity.RoleManager))
		{
			staff.GET("/users/search", m.Handler.Search)
		}
	}
}
