package services

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/petkeeper/internal/server/delivery"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	rm       *repomanager.MemoryRepositoryManager
	tokens   *auth.TokenService
	users    *UserService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rm := repomanager.NewMemoryRepositoryManager()
	creds := credentials.NewStore(rm.Users(nil), credentials.Options{Cost: bcrypt.MinCost, Workers: 2, MaxSecretLength: 72})
	tokens := auth.NewTokenService(auth.TokenConfig{Secret: []byte("test"), TTL: time.Hour}).
		WithClock(func() time.Time { return now })
	tracker := delivery.NewTracker(rm.Messages(nil), delivery.Options{Clock: func() time.Time { return now }})

	return &fixture{
		rm:       rm,
		tokens:   tokens,
		users:    NewUserService(nil, rm, creds, tokens, logging.NopLogger{}),
		messages: NewMessageService(nil, rm, tracker, logging.NopLogger{}),
	}
}
