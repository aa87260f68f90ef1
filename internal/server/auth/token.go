// Package auth issues and validates signed session tokens and resolves them
// to live identities for both HTTP requests and WebSocket handshakes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Token rejection reasons. All of them wrap common.ErrInvalidToken.
var (
	ErrMalformedToken = fmt.Errorf("%w: malformed", common.ErrInvalidToken)
	ErrBadSignature   = fmt.Errorf("%w: bad signature", common.ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", common.ErrInvalidToken)
	ErrMissingSubject = fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
)

// Claims is the token payload: subject (user ID), issued-at and expiry.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenConfig is the immutable signing configuration, built once at startup.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// TokenService is stateless: validity is derived from the signature and the
// expiry alone. Rotating Secret invalidates every outstanding token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    timex.Clock
}

func NewTokenService(cfg TokenConfig) *TokenService {
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenService{
		secret: secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// WithClock returns a copy of the service that reads time from clock.
func (s *TokenService) WithClock(clock timex.Clock) *TokenService {
	c := *s
	c.now = clock
	return &c
}

// DefaultTTL is the lifetime used when Issue is called with ttl <= 0.
func (s *TokenService) DefaultTTL() time.Duration { return s.ttl }

// Issue signs a token for user valid for ttl (DefaultTTL when ttl <= 0).
// Timestamps have whole-second precision and the issue instant is truncated,
// so the token is valid on [floor(now), floor(now)+ttl): it never outlives
// now+ttl and may expire up to one second early.
func (s *TokenService) Issue(user *models.User, ttl time.Duration) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate proves a token is authentic and unexpired and returns its claims.
// It does not check whether the subject still exists or is active.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
