// Package credentials hashes and verifies user secrets and resolves
// identities by username. Plaintext secrets are never stored or logged.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSecretEmpty           = fmt.Errorf("%w: secret is empty", common.ErrCredential)
	ErrSecretTooLong         = fmt.Errorf("%w: secret exceeds maximum length", common.ErrCredential)
	ErrInvalidSecretEncoding = fmt.Errorf("%w: secret is not valid UTF-8", common.ErrCredential)
)

// IdentityLookup is the storage collaborator used to resolve usernames.
type IdentityLookup interface {
	GetUserByLogin(ctx context.Context, userName string) (*models.User, error)
}

// Options tune the hashing cost and the size of the hashing pool.
type Options struct {
	Cost            int
	Workers         int
	MaxSecretLength int
}

// Store is the credential store. Hashing and verification run behind a
// weighted semaphore so a burst of logins cannot monopolise every CPU while
// unrelated connections wait.
type Store struct {
	users     IdentityLookup
	cost      int
	maxLength int
	pool      *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
}

func NewStore(users IdentityLookup, opts Options) *Store {
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxSecretLength < 1 || opts.MaxSecretLength > 72 {
		opts.MaxSecretLength = 72
	}
	return &Store{
		users:     users,
		cost:      opts.Cost,
		maxLength: opts.MaxSecretLength,
		pool:      semaphore.NewWeighted(int64(opts.Workers)),
	}
}

// CheckSecret validates a secret before it is hashed. Oversized secrets are
// rejected rather than truncated.
func (s *Store) CheckSecret(secret string) error {
	switch {
	case secret == "":
		return ErrSecretEmpty
	case !utf8.ValidString(secret):
		return ErrInvalidSecretEncoding
	case len(secret) > s.maxLength:
		return ErrSecretTooLong
	}
	return nil
}

// Hash returns a salted bcrypt blob. Every call uses a fresh salt, so blobs
// for the same secret differ and must be compared with Verify.
func (s *Store) Hash(ctx context.Context, secret string) ([]byte, error) {
	if err := s.CheckSecret(secret); err != nil {
		return nil, err
	}
	if err := s.pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.pool.Release(1)

	plain := []byte(secret)
	defer common.WipeByteArray(plain)

	hash, err := bcrypt.GenerateFromPassword(plain, s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCredential, err)
	}
	return hash, nil
}

// Verify reports whether secret matches hash. Malformed hashes, invalid
// secrets and cancelled contexts all yield false.
func (s *Store) Verify(ctx context.Context, secret string, hash []byte) bool {
	if s.CheckSecret(secret) != nil || len(hash) == 0 {
		return false
	}
	if err := s.pool.Acquire(ctx, 1); err != nil {
		return false
	}
	defer s.pool.Release(1)

	plain := []byte(secret)
	defer common.WipeByteArray(plain)

	return bcrypt.CompareHashAndPassword(hash, plain) == nil
}

// LookupByUsername resolves an identity by exact, case-sensitive username.
func (s *Store) LookupByUsername(ctx context.Context, userName string) (*models.User, error) {
	u, err := s.users.GetUserByLogin(ctx, userName)
	if err != nil {
		return nil, err
	}
	// storage collations may fold case; the contract does not
	if u.UserName != userName {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// Authenticate resolves userName and checks secret against the stored hash.
// Unknown users are verified against a throwaway hash so the response time
// does not reveal whether the account exists. Every failure other than a
// storage outage is reported as common.ErrorUnauthorized.
func (s *Store) Authenticate(ctx context.Context, userName, secret string) (*models.User, error) {
	u, err := s.LookupByUsername(ctx, userName)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		s.Verify(ctx, secret, s.dummy())
		return nil, common.ErrorUnauthorized
	}
	if !s.Verify(ctx, secret, u.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}
	if !u.IsActive {
		return nil, common.ErrorUnauthorized
	}
	return u, nil
}

// fallbackDummyHash is a well-formed DefaultCost hash used when a dummy hash
// cannot be made at the configured cost.
const fallbackDummyHash = "$2a$10$XajjQvNhvvRt5GSeFk1xFeyqRrsxkhBkUiQeg0dt.wU1qD4aFDcga"

// dummy returns the hash verified against for unknown usernames so that a
// miss costs one bcrypt comparison like a hit does.
func (s *Store) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash = []byte(fallbackDummyHash)
		seed, err := common.MakeRandHexString(16)
		if err != nil {
			return
		}
		h, err := s.Hash(context.Background(), seed)
		if err != nil {
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
