package middleware

import "github.com/labstack/echo/v4"

// userIDKey is where JWTAuth stores the authenticated subject.
const userIDKey = "user_id"

// UserID returns the authenticated user of the request, or "" when the
// route is not behind JWTAuth.
func UserID(c echo.Context) string {
    if s, ok := c.Get(userIDKey).(string); ok {
        return s
    }
    return ""
}

// rateSubject is UserID with a placeholder for anonymous callers.
func rateSubject(c echo.Context) string {
    if uid := UserID(c); uid != "" {
        return uid
    }
    return "anon"
}
