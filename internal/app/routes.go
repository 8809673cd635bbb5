package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	var pinger handler.Pinger
	if a.DB != nil {
		pinger = a.DB
	}
	health := handler.NewMetricsHandler(a.Metrics, pinger)
	schedules := handler.NewScheduleHandler(a.Placement)
	timetable := handler.NewTimetableHandler(a.Timetable, a.Export)
	subjects := handler.NewSubjectHandler(a.Subjects)
	rooms := handler.NewRoomHandler(a.Rooms)

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := a.Config.APIPrefix
	// Calendar clients cannot send a bearer token; the signed path is the credential.
	r.GET(prefix+"/timetable/feed/:token", timetable.Feed)

	api := r.Group(prefix)
	api.Use(middleware.JWT(a.Auth), middleware.WithResponseMeta())
	editor := middleware.RequireScheduleEditor()
	admin := middleware.RequireRoles(models.RoleAdmin)

	api.GET("/time-slots", timetable.Slots)
	api.GET("/weeks", timetable.Week)
	api.GET("/metrics/summary", editor, health.Snapshot)

	api.GET("/schedules", schedules.List)
	api.POST("/schedules/check", schedules.Check)
	api.POST("/schedules", editor, schedules.Create)
	api.POST("/schedules/bulk", editor, schedules.BulkCreate)
	api.POST("/schedules/recurring", editor, schedules.CreateRecurring)
	api.GET("/schedules/:id", schedules.Get)
	api.PATCH("/schedules/:id", editor, schedules.Update)
	api.POST("/schedules/:id/cancel", editor, schedules.Cancel)
	api.DELETE("/schedules/:id", editor, schedules.Remove)

	tt := api.Group("/timetable")
	tt.GET("/week", timetable.Grid)
	tt.GET("/free-rooms", timetable.FreeRooms)
	tt.GET("/export", timetable.Export)
	tt.GET("/ical", timetable.Calendar)
	tt.GET("/feed-url", timetable.FeedLink)

	api.GET("/subjects", subjects.List)
	api.GET("/subjects/:id", subjects.Get)
	api.POST("/subjects", admin, subjects.Create)
	api.GET("/rooms", rooms.List)
	api.POST("/rooms", admin, rooms.Create)

	return r
}
