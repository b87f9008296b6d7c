package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/middleware"
    "github.com/wordCupProject/worldcup/internal/model"
    "github.com/wordCupProject/worldcup/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Users *service.UserService
    Log   *zap.Logger
}

func NewAuthHandler(users *service.UserService, log *zap.Logger) *AuthHandler {
    return &AuthHandler{Users: users, Log: log}
}

// ----- DTOs -----

type registerReq struct {
    Email     string `json:"email" validate:"required"`
    Password  string `json:"password" validate:"required"`
    FirstName string `json:"firstName"`
    LastName  string `json:"lastName"`
    Phone     string `json:"phone"`
    Country   string `json:"country"`
}

type loginReq struct {
    Email    string `json:"email" validate:"required"`
    Password string `json:"password" validate:"required"`
}

type userView struct {
    ID        uint64    `json:"id"`
    Email     string    `json:"email"`
    Role      string    `json:"role"`
    FirstName string    `json:"firstName,omitempty"`
    LastName  string    `json:"lastName,omitempty"`
    Phone     string    `json:"phone,omitempty"`
    Country   string    `json:"country,omitempty"`
    CreatedAt time.Time `json:"createdAt"`
}

func toUserView(u model.User) userView {
    return userView{
        ID: u.ID, Email: u.Email, Role: u.Role,
        FirstName: u.FirstName, LastName: u.LastName, Phone: u.Phone, Country: u.Country,
        CreatedAt: u.CreatedAt,
    }
}

type loginResp struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
    User    userView  `json:"user"`
}

// Register: POST /v1/auth/register.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.Register(ctx, service.RegisterInput{
        Email:     req.Email,
        Password:  req.Password,
        FirstName: req.FirstName,
        LastName:  req.LastName,
        Phone:     req.Phone,
        Country:   req.Country,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, toUserView(u))
}

// Login: POST /v1/auth/login.  The token is handed back as an opaque
// string; logging out is left to the client.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    tok, u, err := h.Users.Login(ctx, req.Email, req.Password)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, loginResp{Token: tok.Token, Expires: tok.Exp, User: toUserView(u)})
}

// Me: GET /v1/me.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "code": "INVALID_TOKEN"})
    }
    u, err := h.Users.Me(c.Request().Context(), uid)
    if errors.Is(err, service.ErrNotFound) {
        // Valid token for a user the store no longer has.
        h.Log.Warn("token subject not found", zap.Uint64("user_id", uid), zap.String("email", middleware.Email(c)))
    }
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toUserView(u))
}
