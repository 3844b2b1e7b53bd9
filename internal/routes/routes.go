package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zaqqye/seb_proctoring/internal/config"
	"github.com/zaqqye/seb_proctoring/internal/controllers"
	"github.com/zaqqye/seb_proctoring/internal/database"
	"github.com/zaqqye/seb_proctoring/internal/middleware"
	"github.com/zaqqye/seb_proctoring/internal/models"
	"github.com/zaqqye/seb_proctoring/internal/proctoring"
	"github.com/zaqqye/seb_proctoring/internal/session"
	"github.com/zaqqye/seb_proctoring/internal/ws"
)

// Realtime is everything the proctoring routes need besides the database.
// Journal may be nil.
type Realtime struct {
	Engine   *proctoring.Engine
	Sessions *session.Registry
	Journal  *database.Journal
}

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, rt Realtime) {
	authCfg := middleware.AuthConfig{
		JWTSecret:     cfg.JWTSecret,
		JWTExpiresIn:  cfg.TokenTTL(),
		RefreshSecret: cfg.RefreshJWTSecret,
		RefreshTTL:    cfg.RefreshTTL(),
	}
	authCtrl := &controllers.AuthController{DB: db, Auth: authCfg}
	adminCtrl := &controllers.AdminController{DB: db}
	procCtrl := &controllers.ProctoringController{Engine: rt.Engine, Sessions: rt.Sessions, Journal: rt.Journal}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
		auth.POST("/refresh", authCtrl.Refresh)
	}

	authMW := middleware.AuthMiddleware(db, authCfg)

	// Realtime channel; the token may ride in ?token= for browsers.
	r.GET("/ws", authMW,
		middleware.RequireRoles(models.RoleStudent, models.RoleProctor),
		ws.Handler(rt.Sessions, ws.NewRouter(rt.Engine, rt.Sessions), ws.Options{
			MessagesPerSecond: cfg.WSMessagesPerSecond,
			Burst:             cfg.WSBurst,
		}))

	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/users", authCtrl.Register)
			admin.GET("/users", adminCtrl.ListUsers)
			admin.GET("/users/:user_id", adminCtrl.GetUser)
			admin.PUT("/users/:user_id", adminCtrl.UpdateUser)
			admin.DELETE("/users/:user_id", adminCtrl.DeleteUser)
			admin.GET("/proctoring/stats", procCtrl.Stats)
		}

		// Proctor area (and admin)
		proctor := api.Group("", middleware.RequireRoles(models.RoleProctor))
		{
			proctor.GET("/exams/:examId/attempts", procCtrl.ListAttempts)
			proctor.DELETE("/exams/:examId/attempts", procCtrl.EndExam)
			proctor.GET("/exams/:examId/attempts/:sessionId", procCtrl.GetAttempts)
			proctor.PUT("/exams/:examId/attempts/:sessionId", procCtrl.InitAttempts)
			proctor.POST("/exams/:examId/attempts/:sessionId/reset", procCtrl.ResetAttempts)
			proctor.GET("/exams/:examId/alerts", procCtrl.ListAlerts)
			proctor.POST("/alerts/:id/ack", procCtrl.AckAlert)
		}

		// Collaborator detectors (and admin)
		detector := api.Group("", middleware.RequireRoles(models.RoleDetector))
		{
			detector.POST("/exams/:examId/violations", procCtrl.IngestViolation)
		}
	}
}
