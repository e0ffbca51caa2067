// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"shuttle/internal/http/handlers"
	"shuttle/internal/http/middleware"
	"shuttle/internal/infra"
	"shuttle/internal/modules/driver"
	"shuttle/internal/modules/estimate"
	"shuttle/internal/modules/reservation"
)

type RouterDeps struct {
	Driver       *driver.Service
	Reservations *reservation.Service
	Estimator    *estimate.Service
	Cache        handlers.CacheStore
	Verifier     infra.TokenVerifier
	Log          *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	dh := handlers.NewDriverHandler(deps.Driver)
	api.GET("/events/:event/driver", dh.Find)
	api.POST("/events/:event/drivers/:driver/ping", dh.Ping)
	api.POST("/events/:event/drivers/:driver/arrive", dh.Arrive)
	api.POST("/events/:event/drivers/:driver/next", dh.Next)
	api.GET("/events/:event/drivers/:driver/available-reservation", dh.AvailableReservation)
	api.POST("/drivers/:driver/accept/:reservation", dh.Accept)

	rh := handlers.NewReservationHandler(deps.Reservations)
	api.POST("/events/:event/reservations", rh.Create)
	api.GET("/reservations/:id", rh.Get)
	api.POST("/reservations/:id/cancel", rh.Cancel)
	api.GET("/reservations/:id/estimate", rh.Estimate)
	api.POST("/events/:event/estimate", rh.EstimateNew)
	api.GET("/events/:event/estimate-campus", rh.EstimateCampus)

	eh := handlers.NewEventHandler(deps.Reservations, deps.Estimator)
	api.GET("/events/:event/pool", eh.Pool)
	api.GET("/events/:event/estimates", eh.Estimates)
	api.POST("/events/:event/refresh", eh.Refresh)

	ah := handlers.NewAdminHandler(deps.Cache)
	api.POST("/admin/clear-cache", ah.ClearCache)

	return r
}
