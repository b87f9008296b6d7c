package service

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "net/mail"
    "strings"

    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/auth"
    "github.com/wordCupProject/worldcup/internal/model"
)

// ErrEmailExists is returned by UserStore.CreateUser for a taken email.
var ErrEmailExists = errors.New("email already exists")

// UserStore is the credential store.  Absent rows are reported as
// sql.ErrNoRows.
type UserStore interface {
    CreateUser(ctx context.Context, u *model.User) error
    UserByEmail(ctx context.Context, email string) (model.User, error)
    UserByID(ctx context.Context, id uint64) (model.User, error)
}

// RegisterInput carries the registration form.
type RegisterInput struct {
    Email     string
    Password  string
    FirstName string
    LastName  string
    Phone     string
    Country   string
}

// UserService registers users and exchanges credentials for tokens.
type UserService struct {
    store      UserStore
    tokens     *auth.TokenService
    bcryptCost int
    log        *zap.Logger
}

func NewUserService(store UserStore, tokens *auth.TokenService, bcryptCost int, log *zap.Logger) *UserService {
    if log == nil {
        log = zap.NewNop()
    }
    return &UserService{store: store, tokens: tokens, bcryptCost: bcryptCost, log: log}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// Register creates a user with the default role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
    email := NormalizeEmail(in.Email)
    if _, err := mail.ParseAddress(email); err != nil || email == "" {
        return model.User{}, validation(CodeInvalidEmail, "invalid email address")
    }
    hash, err := auth.HashPassword(in.Password, s.bcryptCost)
    if errors.Is(err, auth.ErrPasswordTooShort) {
        return model.User{}, validation(CodePasswordTooShort,
            fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
    }
    if err != nil {
        return model.User{}, fmt.Errorf("hash password: %w", err)
    }
    u := model.User{
        Email:        email,
        PasswordHash: hash,
        Role:         model.DefaultRole,
        FirstName:    strings.TrimSpace(in.FirstName),
        LastName:     strings.TrimSpace(in.LastName),
        Phone:        strings.TrimSpace(in.Phone),
        Country:      strings.TrimSpace(in.Country),
    }
    if err := s.store.CreateUser(ctx, &u); err != nil {
        if errors.Is(err, ErrEmailExists) {
            return model.User{}, newError(ErrConflict, CodeEmailTaken, "email already registered")
        }
        return model.User{}, fmt.Errorf("create user: %w", err)
    }
    s.log.Info("user registered", zap.Uint64("user_id", u.ID))
    return u, nil
}

// Login checks credentials and issues a token.  Unknown email and wrong
// password are reported identically.
func (s *UserService) Login(ctx context.Context, email, password string) (auth.AccessToken, model.User, error) {
    u, err := s.store.UserByEmail(ctx, NormalizeEmail(email))
    if err != nil && !errors.Is(err, sql.ErrNoRows) {
        return auth.AccessToken{}, model.User{}, fmt.Errorf("load user: %w", err)
    }
    if err != nil || !auth.VerifyPassword(u.PasswordHash, password) {
        return auth.AccessToken{}, model.User{}, newError(ErrUnauthorized, CodeInvalidCredentials, "invalid email or password")
    }
    tok, err := s.tokens.Issue(u)
    if err != nil {
        return auth.AccessToken{}, model.User{}, fmt.Errorf("issue token: %w", err)
    }
    s.log.Info("user logged in", zap.Uint64("user_id", u.ID))
    return tok, u, nil
}

// Me returns the user behind a token's claims.
func (s *UserService) Me(ctx context.Context, id uint64) (model.User, error) {
    u, err := s.store.UserByID(ctx, id)
    if errors.Is(err, sql.ErrNoRows) {
        return model.User{}, notFound(CodeUserNotFound, "user not found")
    }
    return u, err
}
