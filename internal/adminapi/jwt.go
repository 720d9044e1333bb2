package adminapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common JWT errors mirrored from the control-plane's token service.
var (
	ErrInvalidToken        = errors.New("adminapi: invalid token")
	ErrExpiredToken        = errors.New("adminapi: token has expired")
	ErrTokenSigningFailed  = errors.New("adminapi: failed to sign token")
	ErrInvalidSecretLength = errors.New("adminapi: JWT secret must be at least 32 bytes")
)

// Claims is the admin API's bearer token payload. There is no user/password
// model in this server's domain — a single "admin" principal is issued
// tokens out of band by whoever holds the configured JWT secret, so the
// only claim worth carrying past the registered set is the issuing scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// JWTConfig configures the admin token service.
type JWTConfig struct {
	Secret              string
	Issuer              string
	AccessTokenDuration time.Duration
}

// JWTService signs and validates admin API bearer tokens.
type JWTService struct {
	config JWTConfig
}

// NewJWTService builds a JWTService. The secret must be at least 32 bytes,
// matching the config package's validation tag on Admin.JWTSecret.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "schnorrauthd"
	}
	if cfg.AccessTokenDuration == 0 {
		cfg.AccessTokenDuration = 15 * time.Minute
	}
	return &JWTService{config: cfg}, nil
}

// IssueToken mints a signed admin-scope bearer token.
func (s *JWTService) IssueToken() (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(s.config.AccessTokenDuration)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Scope: "admin",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, ErrTokenSigningFailed
	}
	return signed, expiry, nil
}

// Validate parses and verifies a bearer token.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
