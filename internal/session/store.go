package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/nkhella/fairshare/internal/storage"
)

// Authority validates an access token against the issuing source.
// Implemented by the auth package's JWT manager.
type Authority interface {
	ValidateToken(token string) (userID, phoneNumber string, err error)
}

// Store is the process-wide session holder: a single writer (the auth flow)
// and many readers. Every Set is mirrored to the persistent cache under
// CacheKey; a nil Set clears it.
type Store struct {
	cache  storage.Store
	logger *slog.Logger

	mu      sync.RWMutex
	current *Session
	subs    map[int]func(*Session)
	nextSub int
}

// NewStore creates a session store, rehydrating any cached session.
// The cached value is surfaced immediately; call Reconcile to validate it
// against the authority.
func NewStore(ctx context.Context, cache storage.Store, logger *slog.Logger) *Store {
	s := &Store{
		cache:  cache,
		logger: logger,
		subs:   make(map[int]func(*Session)),
	}

	raw, err := cache.GetCache(ctx, CacheKey)
	if errors.Is(err, storage.ErrNotFound) {
		return s
	}
	if err != nil {
		logger.Warn("failed to read session cache", "error", err)
		return s
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		logger.Warn("discarding corrupt session cache", "error", err)
		if err := cache.DeleteCache(ctx, CacheKey); err != nil {
			logger.Warn("failed to clear session cache", "error", err)
		}
		return s
	}

	s.current = &sess
	return s
}

// Current returns the active session, or nil when signed out.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the active session and notifies subscribers. A nil session
// means signed out and clears the cache.
func (s *Store) Set(ctx context.Context, sess *Session) {
	s.mu.Lock()
	s.current = sess
	callbacks := make([]func(*Session), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.mu.Unlock()

	if sess == nil {
		if err := s.cache.DeleteCache(ctx, CacheKey); err != nil {
			s.logger.Warn("failed to clear session cache", "error", err)
		}
	} else {
		raw, err := json.Marshal(sess)
		if err != nil {
			s.logger.Error("failed to serialize session", "error", err)
		} else if err := s.cache.PutCache(ctx, CacheKey, raw); err != nil {
			s.logger.Warn("failed to write session cache", "error", err)
		}
	}

	// Notify outside the lock so a subscriber can read Current.
	for _, fn := range callbacks {
		fn(sess)
	}
}

// Subscribe registers a callback invoked on every session change.
// The returned function unsubscribes; callers must invoke it on teardown.
func (s *Store) Subscribe(fn func(*Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Reconcile checks the rehydrated session against the token authority and
// signs out if the token no longer validates. Meant to run asynchronously
// right after startup: the cached session is usable immediately, and a stale
// one is cleared as soon as the authority answers.
func (s *Store) Reconcile(ctx context.Context, authority Authority) {
	current := s.Current()
	if current == nil {
		return
	}

	userID, phoneNumber, err := authority.ValidateToken(current.AccessToken)
	if err != nil {
		s.logger.Info("cached session no longer valid, signing out", "error", err)
		s.Set(ctx, nil)
		return
	}
	if userID != current.UserID || phoneNumber != current.Phone {
		s.logger.Warn("cached session does not match token claims, signing out",
			"cached_user", current.UserID, "token_user", userID)
		s.Set(ctx, nil)
	}
}
