package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/petkeeper/internal/server/delivery"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/petkeeper/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	e     *echo.Echo
	clock *testClock
	rm    *repomanager.MemoryRepositoryManager
}

type serverOptions struct {
	limiter *RateLimiter
	db      Pinger
	users   func(rm *repomanager.MemoryRepositoryManager) auth.IdentityResolver
	proxies []*net.IPNet
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	rm := repomanager.NewMemoryRepositoryManager()

	creds := credentials.NewStore(rm.Users(nil), credentials.Options{Cost: bcrypt.MinCost, Workers: 2, MaxSecretLength: 72})
	tokens := auth.NewTokenService(auth.TokenConfig{Secret: []byte("test-secret"), TTL: 30 * time.Minute}).
		WithClock(clock.Now)
	var resolver auth.IdentityResolver = rm.Users(nil)
	if opts.users != nil {
		resolver = opts.users(rm)
	}
	tracker := delivery.NewTracker(rm.Messages(nil), delivery.Options{Clock: clock.Now})

	e := NewRouter(RouterConfig{
		Logger:         logging.NopLogger{},
		Authenticator:  auth.NewAuthenticator(tokens, resolver),
		Users:          services.NewUserService(nil, rm, creds, tokens, logging.NopLogger{}),
		Messages:       services.NewMessageService(nil, rm, tracker, logging.NopLogger{}),
		LoginLimiter:   opts.limiter,
		DB:             opts.db,
		TrustedProxies: opts.proxies,
	})
	return &testServer{e: e, clock: clock, rm: rm}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(b)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, name, password string) userView {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": name, "password": password, "email": name + "@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u userView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u
}

func (s *testServer) login(t *testing.T, name, password string) *httptest.ResponseRecorder {
	t.Helper()
	return s.loginVia(t, name, password, "")
}

// loginVia logs in from 10.0.0.1, optionally claiming forwardedFor as the
// original client.
func (s *testServer) loginVia(t *testing.T, name, password, forwardedFor string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {name}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.RemoteAddr = "10.0.0.1:5555"
	if forwardedFor != "" {
		req.Header.Set(echo.HeaderXForwardedFor, forwardedFor)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) token(t *testing.T, name, password string) string {
	t.Helper()
	rec := s.login(t, name, password)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tr tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	return tr.AccessToken
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestAliceScenario(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	u := s.register(t, "alice", "Secret123")
	assert.Equal(t, "alice", u.UserName)
	assert.True(t, u.IsActive)

	rec := s.login(t, "alice", "Secret123")
	require.Equal(t, http.StatusOK, rec.Code)
	var tr tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "bearer", tr.TokenType)
	require.NotEmpty(t, tr.AccessToken)

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", tr.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me userView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, u.ID, me.ID)

	assertUnauthorized(t, s.do(t, http.MethodGet, "/api/v1/users/me", "", nil))

	s.clock.Advance(31 * time.Minute)
	assertUnauthorized(t, s.do(t, http.MethodGet, "/api/v1/users/me", tr.AccessToken, nil))
}

func TestRegister_NeverReturnsHash(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": "alice", "password": "Secret123", "email": "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "hash")
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register(t, "alice", "Secret123")

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing email", map[string]any{"username": "bob", "password": "Secret123"}, http.StatusBadRequest},
		{"bad email", map[string]any{"username": "bob", "password": "Secret123", "email": "nope"}, http.StatusBadRequest},
		{"short password", map[string]any{"username": "bob", "password": "short", "email": "bob@example.com"}, http.StatusBadRequest},
		{"long password", map[string]any{"username": "bob", "password": strings.Repeat("p", 73), "email": "bob@example.com"}, http.StatusBadRequest},
		{"bad username", map[string]any{"username": "b o", "password": "Secret123", "email": "bob@example.com"}, http.StatusBadRequest},
		{"duplicate username", map[string]any{"username": "alice", "password": "Secret123", "email": "x@example.com"}, http.StatusConflict},
		{"duplicate email", map[string]any{"username": "alice2", "password": "Secret123", "email": "alice@example.com"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register(t, "alice", "Secret123")

	assertUnauthorized(t, s.login(t, "alice", "wrong"))
	assertUnauthorized(t, s.login(t, "ghost", "Secret123"))
	assertUnauthorized(t, s.login(t, "", ""))
}

func TestProtected_BadTokens(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register(t, "alice", "Secret123")
	tok := s.token(t, "alice", "Secret123")

	for _, h := range []string{"Basic abc", "Bearer", "Bearer not.a.jwt", tok} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set(echo.HeaderAuthorization, h)
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		assertUnauthorized(t, rec)
	}
}

func TestDeactivate_RevokesTokens(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register(t, "alice", "Secret123")
	tok := s.token(t, "alice", "Secret123")

	rec := s.do(t, http.MethodPost, "/api/v1/users/me/deactivate", tok, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assertUnauthorized(t, s.do(t, http.MethodGet, "/api/v1/users/me", tok, nil))
	assertUnauthorized(t, s.login(t, "alice", "Secret123"))
}

func TestMessages_Lifecycle(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register(t, "alice", "Secret123")
	bob := s.register(t, "bob", "Secret123")
	aliceTok := s.token(t, "alice", "Secret123")
	bobTok := s.token(t, "bob", "Secret123")

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/c-1/messages", aliceTok, map[string]any{
		"recipient_id": bob.ID, "body": "Rex needs his rabies shot",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m MessageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, models.StatusSent, m.DeliveryStatus)
	assert.Nil(t, m.DeliveredAt)
	assert.Nil(t, m.ReadAt)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/c-1/messages?limit=10", bobTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []MessageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	t1 := s.clock.Now().Add(10 * time.Minute)
	t2 := s.clock.Now().Add(5 * time.Minute)

	rec = s.do(t, http.MethodPost, "/api/v1/messages/"+m.ID+"/delivered", bobTok, map[string]any{"at": t1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, models.StatusDelivered, m.DeliveryStatus)
	assert.True(t, m.DeliveredAt.Equal(t1))

	rec = s.do(t, http.MethodPost, "/api/v1/messages/"+m.ID+"/read", bobTok, map[string]any{"at": t2})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, models.StatusRead, m.DeliveryStatus)
	assert.True(t, m.ReadAt.Equal(t1), "read_at clamped to delivered_at")

	// duplicate acknowledgement is fine
	rec = s.do(t, http.MethodPost, "/api/v1/messages/"+m.ID+"/delivered", bobTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/messages/"+m.ID+"/read", aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/messages/missing/read", bobTok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/c-1/messages?before="+m.ID, bobTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}

func TestMessages_BadRequests(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	s.register(t, "alice", "Secret123")
	tok := s.token(t, "alice", "Secret123")

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/c-1/messages", tok, map[string]any{"body": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/conversations/c-1/messages", tok, map[string]any{"recipient_id": "nobody", "body": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/c-1/messages?limit=abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/c-1/messages?before=abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assertUnauthorized(t, s.do(t, http.MethodGet, "/api/v1/conversations/c-1/messages", "", nil))
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t, serverOptions{limiter: NewRateLimiter(1, 2)})
	s.register(t, "alice", "Secret123")

	assert.Equal(t, http.StatusOK, s.login(t, "alice", "Secret123").Code)
	assert.Equal(t, http.StatusUnauthorized, s.login(t, "alice", "bad").Code)
	rec := s.login(t, "alice", "Secret123")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogin_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	s := newTestServer(t, serverOptions{limiter: NewRateLimiter(1, 1)})
	s.register(t, "alice", "Secret123")

	limited := 0
	for i := 0; i < 20; i++ {
		rec := s.loginVia(t, "alice", "bad", fmt.Sprintf("203.0.113.%d", i+1))
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 19, limited)
}

func TestLogin_RateLimitTrustedProxy(t *testing.T) {
	_, proxy, err := net.ParseCIDR("10.0.0.0/24")
	require.NoError(t, err)
	s := newTestServer(t, serverOptions{limiter: NewRateLimiter(1, 1), proxies: []*net.IPNet{proxy}})
	s.register(t, "alice", "Secret123")

	assert.Equal(t, http.StatusUnauthorized, s.loginVia(t, "alice", "bad", "203.0.113.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, s.loginVia(t, "alice", "bad", "203.0.113.1").Code)
	// A different client behind the same proxy has its own bucket.
	assert.Equal(t, http.StatusUnauthorized, s.loginVia(t, "alice", "bad", "203.0.113.2").Code)
}

type failingResolver struct{}

func (failingResolver) GetUserByID(context.Context, string) (*models.User, error) {
	return nil, errors.New("connection refused")
}

func TestProtected_StorageOutage(t *testing.T) {
	s := newTestServer(t, serverOptions{users: func(*repomanager.MemoryRepositoryManager) auth.IdentityResolver {
		return failingResolver{}
	}})
	s.register(t, "alice", "Secret123")
	tok := s.token(t, "alice", "Secret123")

	rec := s.do(t, http.MethodGet, "/api/v1/users/me", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)

	s = newTestServer(t, serverOptions{db: pinger{}})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "", nil).Code)

	s = newTestServer(t, serverOptions{db: pinger{err: common.ErrorInternal}})
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/healthz", "", nil).Code)
}
