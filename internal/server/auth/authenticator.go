package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

// Reason classifies an authentication failure for server-side diagnostics.
// Clients always see a single uniform rejection.
type Reason string

const (
	ReasonUnauthenticated          Reason = "unauthenticated"
	ReasonInvalidToken             Reason = "invalid_token"
	ReasonUnknownOrInactiveSubject Reason = "unknown_or_inactive_subject"
)

var (
	ErrUnauthenticated          = errors.New("no usable credential")
	ErrInvalidToken             = errors.New("token rejected")
	ErrUnknownOrInactiveSubject = errors.New("subject unknown or inactive")
)

// AuthenticationError is returned by Authenticator for every rejection. It
// matches common.ErrorUnauthorized and its reason sentinel via errors.Is.
type AuthenticationError struct {
	Reason Reason
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed: " + string(e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool {
	switch target {
	case common.ErrorUnauthorized:
		return true
	case ErrUnauthenticated:
		return e.Reason == ReasonUnauthenticated
	case ErrInvalidToken:
		return e.Reason == ReasonInvalidToken
	case ErrUnknownOrInactiveSubject:
		return e.Reason == ReasonUnknownOrInactiveSubject
	}
	return false
}

func reject(reason Reason, err error) error {
	return &AuthenticationError{Reason: reason, Err: err}
}

// TokenValidator is the part of TokenService the authenticator depends on.
type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

// IdentityResolver looks identities up by subject (user ID).
type IdentityResolver interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticator is the single validation core shared by the request-scoped
// (HTTP) and connection-scoped (WebSocket) adapters: signature and expiry
// first, then a live lookup of the subject.
type Authenticator struct {
	tokens TokenValidator
	users  IdentityResolver
}

func NewAuthenticator(tokens TokenValidator, users IdentityResolver) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate resolves a raw bearer token to an active identity. Rejections
// are *AuthenticationError; any other error is a storage failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, reject(ReasonUnauthenticated, nil)
	}

	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, reject(ReasonInvalidToken, err)
	}

	user, err := a.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, reject(ReasonUnknownOrInactiveSubject, err)
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}
	if !user.IsActive {
		return nil, reject(ReasonUnknownOrInactiveSubject, nil)
	}
	return user, nil
}

// AuthenticateHeader extracts the bearer token from an Authorization header
// value and authenticates it.
func (a *Authenticator) AuthenticateHeader(ctx context.Context, header string) (*models.User, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, reject(ReasonUnauthenticated, err)
	}
	return a.Authenticate(ctx, token)
}

var errBadAuthHeader = errors.New("invalid authorization header format")

// BearerToken parses "Bearer <token>". The scheme is case-insensitive.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", errBadAuthHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errBadAuthHeader
	}
	return token, nil
}

// ReasonOf extracts the diagnostic reason from err, or "" if err is not an
// authentication rejection.
func ReasonOf(err error) Reason {
	var ae *AuthenticationError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
