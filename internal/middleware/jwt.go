package middleware

import (
    "errors"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/wordCupProject/worldcup/internal/auth"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the token's user id, email and role in the request context
// under "user_id", "email" and "role".  Any token failure is answered with
// 401 and never reaches the handler.
func JWTAuth(tokens *auth.TokenService) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            h := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(h, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "MISSING_TOKEN"})
            }
            claims, err := tokens.Validate(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
            if err != nil {
                code := "INVALID_TOKEN"
                if errors.Is(err, auth.ErrTokenExpired) {
                    code = "TOKEN_EXPIRED"
                }
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error(), "code": code})
            }
            c.Set(userIDKey, claims.UserID)
            c.Set(emailKey, claims.Email)
            c.Set(roleKey, claims.Role)
            return next(c)
        }
    }
}
