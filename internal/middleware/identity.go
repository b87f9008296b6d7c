package middleware

// identity.go holds the context keys written by JWTAuth and the accessors
// handlers and the rate limiter use to read them back.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/wordCupProject/worldcup/internal/model"
)

const (
    userIDKey = "user_id"
    emailKey  = "email"
    roleKey   = "role"
)

// UserID returns the authenticated user's id.  ok is false on routes not
// guarded by JWTAuth.
func UserID(c echo.Context) (id uint64, ok bool) {
    id, ok = c.Get(userIDKey).(uint64)
    return id, ok && id != 0
}

// Email returns the authenticated user's email or "".
func Email(c echo.Context) string {
    s, _ := c.Get(emailKey).(string)
    return s
}

// Role returns the authenticated user's role or "".
func Role(c echo.Context) string {
    s, _ := c.Get(roleKey).(string)
    return s
}

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(c echo.Context) bool { return Role(c) == model.AdminRole }

// userKey identifies the caller for rate limiting.  It returns "guest"
// when no user is authenticated.
func userKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "guest"
}
