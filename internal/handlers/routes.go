package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ArowuTest/lottery-odds/internal/config"
	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/ArowuTest/lottery-odds/internal/store"
)

// Dependencies are the collaborators the API routes are served by.
type Dependencies struct {
	Users       store.UserStore
	Runs        store.RunStore
	Hub         *ProgressHub
	Simulations *SimulationHandler
}

// SetupRouter wires every /api/v1 route.
func SetupRouter(frontendURL string, deps Dependencies) *gin.Engine {
	r := gin.Default()
	r.Use(config.CORSMiddleware(frontendURL))

	authH := NewAuthHandler(deps.Users)
	userH := NewUserHandler(deps.Users)

	api := r.Group("/api/v1")
	{
		// Auth
		api.POST("/admin/login", authH.Login)

		// Admin users
		users := api.Group("/admin/users", RequireAuth(models.RoleSuperAdmin))
		{
			users.POST("", userH.CreateUser)
			users.GET("", userH.ListUsers)
		}

		// Simulations
		sims := api.Group("/simulations", RequireAuth())
		{
			sims.GET("", deps.Simulations.List)
			sims.GET("/:id", deps.Simulations.Get)
			sims.GET("/:id/progress", StreamProgress(deps.Hub, deps.Runs))
			sims.POST("", RequireAuth(models.RoleSuperAdmin, models.RoleAdmin), deps.Simulations.Create)
			sims.DELETE("/:id", RequireAuth(models.RoleSuperAdmin, models.RoleAdmin), deps.Simulations.Cancel)
		}
	}
	return r
}
