package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-sync/internal/broadcast"
	"github.com/iliyamo/cinema-seat-sync/internal/catalog"
	"github.com/iliyamo/cinema-seat-sync/internal/handler"
	"github.com/iliyamo/cinema-seat-sync/internal/lease"
	"github.com/iliyamo/cinema-seat-sync/internal/registry"
	"github.com/iliyamo/cinema-seat-sync/internal/utils"
)

func TestRegisterRoutes(t *testing.T) {
	hub := broadcast.NewHub(broadcast.Options{Origin: "node-1"})
	defer hub.Close()
	cat := catalog.NewStatic([]int64{42}, 1, 5)
	mgr := lease.NewManager(registry.NewMemory(), hub, cat, lease.Options{})

	limited := 0
	e := echo.New()
	RegisterRoutes(e, Deps{
		Seats:     handler.NewSeatHandler(mgr, cat),
		WS:        handler.NewWSHandler(mgr, hub, 0, 0),
		JWTSecret: "s",
		Origin:    hub.Origin(),
		RateLimit: func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { limited++; return next(c) }
		},
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "node-1")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/seats/hold", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, limited)

	tok, err := utils.SignAccessToken("s", "u1", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/seats/hold", strings.NewReader(`{"showId":42,"seatNumber":"A1"}`))
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, limited)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows/42/layout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shows/42/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
