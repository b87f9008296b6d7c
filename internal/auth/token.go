// Package auth issues and validates the bearer tokens that prove a
// user's identity, and hashes passwords for the credential store.
package auth

import (
    "crypto/rand"
    "errors"
    "fmt"
    "time"

    "github.com/golang-jwt/jwt/v5"

    "github.com/wordCupProject/worldcup/internal/model"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken is the single kind reported for any token that cannot
// be trusted.  ErrTokenExpired and ErrTokenMalformed wrap it so callers
// can check either the kind or the precise reason with errors.Is.
var (
    ErrInvalidToken   = errors.New("invalid token")
    ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrInvalidToken)
    ErrTokenMalformed = fmt.Errorf("%w: token malformed", ErrInvalidToken)
)

// SigningKey is the symmetric HS256 key.  It is an explicit value built
// once at startup and handed to the TokenService.  A key from
// NewSigningKey lives only in memory: tokens issued before a restart can
// no longer be verified afterwards.
type SigningKey []byte

// NewSigningKey returns 32 bytes of cryptographically secure random data.
func NewSigningKey() (SigningKey, error) {
    buf := make([]byte, 32)
    if _, err := rand.Read(buf); err != nil {
        return nil, err
    }
    return SigningKey(buf), nil
}

// KeyFromSecret builds a key from an operator supplied secret so that
// tokens survive restarts.
func KeyFromSecret(secret string) SigningKey { return SigningKey(secret) }

// Claims are the identity fields embedded in every token.  The subject
// carries the email, mirroring the userId/email pair.
type Claims struct {
    UserID uint64 `json:"userId"`
    Email  string `json:"email"`
    Role   string `json:"role"`
    jwt.RegisteredClaims
}

// AccessToken is a signed token together with its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// TokenService signs and verifies tokens.  It holds no session state.
type TokenService struct {
    key SigningKey
    ttl time.Duration
    now func() time.Time
}

// NewTokenService builds a TokenService.  A non-positive ttl falls back to
// DefaultTokenTTL.
func NewTokenService(key SigningKey, ttl time.Duration) *TokenService {
    if ttl <= 0 {
        ttl = DefaultTokenTTL
    }
    return &TokenService{key: key, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; used by tests to move past expiry.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
    s.now = now
    return s
}

// Issue signs a token for u.  The token expires ttl after issuance.
func (s *TokenService) Issue(u model.User) (AccessToken, error) {
    iat := s.now().UTC()
    exp := iat.Add(s.ttl)
    claims := Claims{
        UserID: u.ID,
        Email:  u.Email,
        Role:   u.Role,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   u.Email,
            IssuedAt:  jwt.NewNumericDate(iat),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(s.key))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// Validate verifies the signature and expiry of raw and returns its
// claims.  It does not consult the credential store: a deleted user or a
// changed role is still reflected as it was at issuance.
func (s *TokenService) Validate(raw string) (*Claims, error) {
    if raw == "" {
        return nil, ErrTokenMalformed
    }
    claims := &Claims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
        }
        return []byte(s.key), nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
        jwt.WithTimeFunc(s.now),
    )
    if err != nil {
        if errors.Is(err, jwt.ErrTokenExpired) {
            return nil, ErrTokenExpired
        }
        return nil, ErrTokenMalformed
    }
    if !tok.Valid || claims.UserID == 0 {
        return nil, ErrTokenMalformed
    }
    return claims, nil
}

// ExtractUserID returns the userId claim of a valid token.
func (s *TokenService) ExtractUserID(raw string) (uint64, error) {
    c, err := s.Validate(raw)
    if err != nil {
        return 0, err
    }
    return c.UserID, nil
}

// ExtractEmail returns the email claim of a valid token.
func (s *TokenService) ExtractEmail(raw string) (string, error) {
    c, err := s.Validate(raw)
    if err != nil {
        return "", err
    }
    return c.Email, nil
}
