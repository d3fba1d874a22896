package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 30 * time.Minute
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingAccessKey     = errors.New("access key must be configured")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
	// ErrInvalidAccessKey indicates the presented access key did not match.
	ErrInvalidAccessKey = errors.New("auth: invalid access key")
)

// TokenServiceConfig configures the API token service.
type TokenServiceConfig struct {
	AccessKey     string
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenService exchanges the configured access key for short-lived bearer
// tokens and validates them on protected routes.
type TokenService struct {
	config TokenServiceConfig
	clock  func() time.Time
}

// NewTokenService constructs a TokenService with sane defaults.
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenService{
		config: TokenServiceConfig{
			AccessKey:     cfg.AccessKey,
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// IssueToken verifies the presented access key and produces a signed JWT for
// the named client together with its expiry in seconds.
func (s *TokenService) IssueToken(_ context.Context, accessKey, clientName string) (string, int64, error) {
	if len(s.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if s.config.AccessKey == "" {
		return "", 0, errMissingAccessKey
	}
	if subtle.ConstantTimeCompare([]byte(accessKey), []byte(s.config.AccessKey)) != 1 {
		return "", 0, ErrInvalidAccessKey
	}
	subject := strings.TrimSpace(clientName)
	if subject == "" {
		return "", 0, errMissingSubjectClaim
	}

	now := s.clock().UTC()
	expiresAt := now.Add(s.config.TokenTTL).UTC()

	registered := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.config.Issuer,
		Audience:  []string{s.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(s.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the bearer token is well formed and returns the subject.
func (s *TokenService) ValidateToken(tokenString string) (string, error) {
	if len(s.config.SigningSecret) == 0 {
		return "", errMissingSigningSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return s.config.SigningSecret, nil
		},
		jwt.WithAudience(s.config.Audience),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}
