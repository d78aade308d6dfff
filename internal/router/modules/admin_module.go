package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-membership-affiliate/internal/container"
	"github.com/oksasatya/go-membership-affiliate/internal/domain/entity"
	handlers "github.com/oksasatya/go-membership-affiliate/internal/interface/http"
	"github.com/oksasatya/go-membership-affiliate/internal/interface/middleware"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
)

// AdminModule exposes staff routes under /admin. Approval and search are open
// to employees; free-form notifications are admin only.
type AdminModule struct {
	Handler *handlers.AdminHandler
	JWT     *helpers.JWTManager
}

func NewAdminModule(h *handlers.AdminHandler, jwt *helpers.JWTManager) *AdminModule {
	return &AdminModule{Handler: h, JWT: jwt}
}

func (m *AdminModule) Name() string { return "admin" }

func (m *AdminModule) Register(rg *gin.RouterGroup) {
	rdb := container.GetRedis()
	staff := rg.Group("/admin")
	staff.Use(
		middleware.Auth(rdb, m.JWT),
		middleware.RequireRole(entity.RoleAdmin, entity.RoleEmployee),
		middleware.RateLimit(rdb, 120, time.Minute, middleware.KeyByUserID(), nil),
	)
	{
		staff.POST("/users/:id/approve", m.Handler.Approve)
		staff.GET("/users/search", m.Handler.Search)
		staff.GET("/users/export", m.Handler.Export)
		staff.POST("/users/:id/notify", middleware.RequireRole(entity.RoleAdmin), m.Handler.Notify)
	}
}
