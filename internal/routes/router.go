package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/hray3182/agenda/internal/controller"
	"github.com/hray3182/agenda/internal/middleware"
)

func Router(ctl *controller.Controller, tokens middleware.TokenParser, limiter *middleware.RateLimiter, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	router.GET("/health", ctl.Health)

	// Public: no auth, rate limited per IP
	public := router.Group("")
	public.Use(limiter.Middleware())
	{
		public.POST("/usuarios", ctl.Register)
		public.POST("/login", ctl.Login)
	}

	// Protected: JWT required
	api := router.Group("")
	api.Use(middleware.AuthMiddleware(tokens))
	{
		api.GET("/usuarios/me", ctl.Me)
		api.PUT("/usuarios/me/telegram", ctl.LinkTelegram)

		api.GET("/recados", ctl.ListErrands)
		api.POST("/recados", ctl.CreateErrand)
		api.PUT("/recados/:id", ctl.UpdateErrand)
		api.DELETE("/recados/:id", ctl.DeleteErrand)

		api.GET("/citas", ctl.ListAppointments)
		api.POST("/citas", ctl.CreateAppointment)
		api.GET("/citas/:id", ctl.GetAppointment)
		api.PUT("/citas/:id", ctl.UpdateAppointment)
		api.DELETE("/citas/:id", ctl.DeleteAppointment)

		api.GET("/alarmas", ctl.ListAlarms)

		api.GET("/notificaciones", ctl.ListNotifications)
		api.PATCH("/notificaciones/:id/read", ctl.MarkNotificationRead)
		api.DELETE("/notificaciones", ctl.ClearNotifications)
	}

	return router
}
