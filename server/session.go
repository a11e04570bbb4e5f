package server

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAccountExists rejects a signup for a taken username.
var ErrAccountExists = errors.New("account already exists")

// ErrBadCredentials rejects a token request with an
// unknown username or a wrong password. One sentinel for
// both so responses never leak which part failed.
var ErrBadCredentials = errors.New(
	"unknown username or password",
)

// Account is a local service account, distinct from any
// instance identity.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// accountRecord holds the stored credential material.
type accountRecord struct {
	account Account
	salt    []byte
	hash    []byte
}

// accountStore keeps local accounts in memory, guarded by
// a mutex. Passwords are stored salted and hashed only.
type accountStore struct {
	mu         sync.Mutex
	byUsername map[string]*accountRecord
	byID       map[string]*accountRecord
}

func newAccountStore() *accountStore {
	return &accountStore{
		byUsername: make(map[string]*accountRecord),
		byID:       make(map[string]*accountRecord),
	}
}

// Create registers a new account.
func (s *accountStore) Create(
	username string,
	password string,
) (Account, error) {
	const errCtx = "creating account"

	if username == "" || password == "" {
		return Account{}, fmt.Errorf(
			"%s: username and password must be set",
			errCtx,
		)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Account{}, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	rec := &accountRecord{
		account: Account{
			ID:       uuid.NewString(),
			Username: username,
		},
		salt: salt,
		hash: hashPassword(salt, password),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[username]; taken {
		return Account{}, fmt.Errorf(
			"%s: %w: %s",
			errCtx, ErrAccountExists, username,
		)
	}

	s.byUsername[username] = rec
	s.byID[rec.account.ID] = rec

	return rec.account, nil
}

// Verify checks a username and password pair.
func (s *accountStore) Verify(
	username string,
	password string,
) (Account, error) {
	const errCtx = "verifying credentials"

	s.mu.Lock()
	rec, ok := s.byUsername[username]
	s.mu.Unlock()

	if !ok {
		return Account{}, fmt.Errorf(
			"%s: %w", errCtx, ErrBadCredentials,
		)
	}

	probe := hashPassword(rec.salt, password)
	if subtle.ConstantTimeCompare(probe, rec.hash) != 1 {
		return Account{}, fmt.Errorf(
			"%s: %w", errCtx, ErrBadCredentials,
		)
	}

	return rec.account, nil
}

// ByID returns the account behind an ID.
func (s *accountStore) ByID(id string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Account{}, false
	}

	return rec.account, true
}

func hashPassword(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))

	return h.Sum(nil)
}

// session is one issued bearer token's state.
type session struct {
	accountID string
	expiresAt time.Time
}

// sessionStore keeps issued bearer sessions in memory.
// Expired entries are dropped on lookup.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	byToken map[string]session
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:     ttl,
		byToken: make(map[string]session),
	}
}

// Issue creates a bearer token for the account.
func (s *sessionStore) Issue(
	accountID string,
) (string, error) {
	const errCtx = "issuing session"

	token, err := randomToken(32)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byToken[token] = session{
		accountID: accountID,
		expiresAt: time.Now().Add(s.ttl),
	}

	return token, nil
}

// Resolve returns the account ID behind a live session
// token. Expired sessions are removed and report false.
func (s *sessionStore) Resolve(
	token string,
) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byToken[token]
	if !ok {
		return "", false
	}

	if time.Now().After(sess.expiresAt) {
		delete(s.byToken, token)

		return "", false
	}

	return sess.accountID, true
}

// randomToken returns n random bytes hex encoded.
func randomToken(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf(
			"generating token: %w", err,
		)
	}

	return hex.EncodeToString(raw), nil
}
