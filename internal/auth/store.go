package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/alferdousrana/Lifesheba/internal/domain"
	"github.com/alferdousrana/Lifesheba/internal/storage"
)

const (
	DefaultTokenKey = "access_token"
	profilePath     = "/accounts/profile/me/"
)

var ErrEmptyToken = errors.New("token must not be empty")

// ProfileFetcher loads the profile behind a bearer token.
type ProfileFetcher interface {
	Get(ctx context.Context, path, token string, out any) error
}

// Store holds the signed-in user of the session, if any. The access token
// lives in its own storage slot; the profile is fetched from the remote API
// and never persisted.
type Store struct {
	mu       sync.RWMutex
	storage  storage.Storage
	api      ProfileFetcher
	tokenKey string
	logger   *zap.Logger

	token   string
	user    *domain.User
	loading bool
}

func NewStore(st storage.Storage, api ProfileFetcher, tokenKey string, logger *zap.Logger) *Store {
	if tokenKey == "" {
		tokenKey = DefaultTokenKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage:  st,
		api:      api,
		tokenKey: tokenKey,
		logger:   logger,
		loading:  true,
	}
}

// Initialize reads the stored token and loads its profile. Any failure
// leaves the session signed out; nothing is returned to the caller.
func (s *Store) Initialize(ctx context.Context) {
	defer s.setLoading(false)

	data, err := s.storage.Get(ctx, s.tokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to read access token", zap.Error(err))
		return
	}

	token := string(data)
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.refresh(ctx, token); err != nil {
		s.logger.Warn("auth fetch error", zap.Error(err))
	}
}

// SetToken stores token and loads the matching profile, signing the session in.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.storage.Set(ctx, s.tokenKey, []byte(token)); err != nil {
		s.logger.Warn("failed to persist access token", zap.Error(err))
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	return s.refresh(ctx, token)
}

// Logout forgets the user and deletes the stored token.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.storage.Remove(ctx, s.tokenKey); err != nil {
		s.logger.Warn("failed to remove access token", zap.Error(err))
	}
}

// SetUser replaces the cached profile, e.g. after the user edited it.
func (s *Store) SetUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = copyUser(user)
}

// User returns a copy of the current profile, or nil when signed out.
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) refresh(ctx context.Context, token string) error {
	var user domain.User
	if err := s.api.Get(ctx, profilePath, token, &user); err != nil {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return nil
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
