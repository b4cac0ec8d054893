package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/cinema-seat-sync/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a bearer access token and
// stores its subject under "user_id".  The token is read from the
// Authorization header, or from the token query parameter for callers that
// cannot set headers (browser WebSockets and beacon releases).
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := bearerToken(c.Request())
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            uid, err := utils.ParseUserID(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(userIDKey, uid)
            return next(c)
        }
    }
}

func bearerToken(r *http.Request) string {
    auth := r.Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    return strings.TrimSpace(r.URL.Query().Get("token"))
}
