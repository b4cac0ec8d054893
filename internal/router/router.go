package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-sync/internal/handler"
	"github.com/iliyamo/cinema-seat-sync/internal/middleware"
)

// Deps collects what the routes need.  RateLimit and Cache may be nil.
type Deps struct {
	Seats     *handler.SeatHandler
	WS        *handler.WSHandler
	JWTSecret string
	Origin    string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// RegisterRoutes maps every endpoint of the reservation service.
//
//	GET  /healthz                 liveness
//	POST /v1/seats/hold           lease one seat
//	POST /v1/seats/release        release one held seat (beacon friendly)
//	POST /v1/seats/release-all    release all of the caller's holds on a show
//	POST /v1/seats/book           book held seats atomically
//	GET  /v1/shows/:id/occupied   HELD and BOOKED seats
//	GET  /v1/shows/:id/layout     seat map by row (cached)
//	GET  /v1/shows/:id/ws         push channel
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Origin))

	auth := middleware.JWTAuth(d.JWTSecret)

	// Rate limiting runs after auth so buckets can be keyed by user.
	seatMW := []echo.MiddlewareFunc{auth}
	if d.RateLimit != nil {
		seatMW = append(seatMW, d.RateLimit)
	}
	seats := e.Group("/v1/seats", seatMW...)
	seats.POST("/hold", d.Seats.Hold)
	seats.POST("/release", d.Seats.Release)
	seats.POST("/release-all", d.Seats.ReleaseAll)
	seats.POST("/book", d.Seats.Book)

	shows := e.Group("/v1/shows")
	shows.GET("/:id/occupied", d.Seats.Occupied)
	if d.Cache != nil {
		shows.GET("/:id/layout", d.Seats.Layout, d.Cache)
	} else {
		shows.GET("/:id/layout", d.Seats.Layout)
	}
	shows.GET("/:id/ws", d.WS.Connect, auth)
}
