package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health is the liveness endpoint used by load balancers.  It reports the
// node's broadcast origin so operators can tell nodes apart.
func Health(origin string) echo.HandlerFunc {
    return func(c echo.Context) error {
        return c.JSON(http.StatusOK, echo.Map{"status": "ok", "node": origin})
    }
}
