package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/auth"
    "github.com/wordCupProject/worldcup/internal/middleware"
    "github.com/wordCupProject/worldcup/internal/service"
)

// RequestValidator plugs go-playground/validator into echo so handlers can
// call c.Validate on bound request bodies.
type RequestValidator struct {
    v *validator.Validate
}

// NewRequestValidator returns a validator for echo.Echo.Validator.
func NewRequestValidator() *RequestValidator {
    return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error { return rv.v.Struct(i) }

// bindValid binds the request body into req and validates it.  The
// returned message names the first offending field.
func bindValid(c echo.Context, req any) (string, bool) {
    if err := c.Bind(req); err != nil {
        return "invalid request body", false
    }
    if err := c.Validate(req); err != nil {
        var verrs validator.ValidationErrors
        if errors.As(err, &verrs) && len(verrs) > 0 {
            return verrs[0].Field() + " is " + describeTag(verrs[0].Tag()), false
        }
        return "invalid request body", false
    }
    return "", true
}

func describeTag(tag string) string {
    switch tag {
    case "required":
        return "required"
    case "email":
        return "not a valid email"
    case "min", "gt", "gte":
        return "too small"
    default:
        return "invalid"
    }
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "INVALID_REQUEST"})
}

// getUserID returns the caller's id as stored by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
    id, ok := middleware.UserID(c)
    if !ok {
        return 0, errors.New("invalid user_id in context")
    }
    return id, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
    switch {
    case errors.Is(err, service.ErrValidation):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, service.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, service.ErrGateway):
        return http.StatusBadGateway
    case errors.Is(err, service.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
        return http.StatusUnauthorized
    default:
        return http.StatusInternalServerError
    }
}

// respondError writes err as {"error","code"}.  Errors that are not
// service errors are logged and reported as a generic 500.
func respondError(c echo.Context, log *zap.Logger, err error) error {
    var se *service.Error
    if errors.As(err, &se) {
        return c.JSON(statusFor(err), echo.Map{"error": se.Message, "code": se.Code})
    }
    if errors.Is(err, auth.ErrInvalidToken) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error(), "code": "INVALID_TOKEN"})
    }
    log.Error("request failed",
        zap.String("method", c.Request().Method),
        zap.String("path", c.Path()),
        zap.Error(err))
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "code": "INTERNAL"})
}

// forbidden is returned when a caller touches another user's resource.
func forbidden(c echo.Context) error {
    return c.JSON(http.StatusForbidden, echo.Map{"error": "not your resource", "code": "FORBIDDEN"})
}

// canAccess reports whether the caller owns a resource of ownerID or is
// an admin.
func canAccess(c echo.Context, ownerID uint64) bool {
    if middleware.IsAdmin(c) {
        return true
    }
    uid, err := getUserID(c)
    return err == nil && uid == ownerID
}
