package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nkhella/fairshare/internal/models"
	"github.com/nkhella/fairshare/internal/storage"
)

// cacheOnlyStore implements storage.Store for the cache methods; everything
// else is unused by the session store.
type cacheOnlyStore struct {
	values map[string][]byte
}

func newCacheOnlyStore() *cacheOnlyStore {
	return &cacheOnlyStore{values: make(map[string][]byte)}
}

func (c *cacheOnlyStore) PutCache(_ context.Context, key string, value []byte) error {
	c.values[key] = append([]byte(nil), value...)
	return nil
}

func (c *cacheOnlyStore) GetCache(_ context.Context, key string) ([]byte, error) {
	if v, ok := c.values[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, storage.ErrNotFound
}

func (c *cacheOnlyStore) DeleteCache(_ context.Context, key string) error {
	delete(c.values, key)
	return nil
}

func (c *cacheOnlyStore) GetProfile(context.Context, string) (*models.Profile, error) {
	return nil, storage.ErrNotFound
}
func (c *cacheOnlyStore) GetProfileByPhone(context.Context, string) (*models.Profile, error) {
	return nil, storage.ErrNotFound
}
func (c *cacheOnlyStore) SearchProfilesByPhonePrefix(context.Context, string) ([]models.Profile, error) {
	return nil, nil
}
func (c *cacheOnlyStore) UpsertProfile(_ context.Context, p *models.Profile) (*models.Profile, error) {
	return p, nil
}
func (c *cacheOnlyStore) PutOtpChallenge(context.Context, *models.OtpChallenge) error { return nil }
func (c *cacheOnlyStore) GetOtpChallenge(context.Context, string) (*models.OtpChallenge, error) {
	return nil, storage.ErrNotFound
}
func (c *cacheOnlyStore) DeleteOtpChallenge(context.Context, string) error { return nil }
func (c *cacheOnlyStore) Close() error                                     { return nil }

type stubAuthority struct {
	userID string
	phone  string
	err    error
}

func (s stubAuthority) ValidateToken(string) (string, string, error) {
	return s.userID, s.phone, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreSetPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	cache := newCacheOnlyStore()
	store := NewStore(ctx, cache, testLogger())

	if store.Current() != nil {
		t.Fatal("expected no session on a cold start")
	}

	var seen []*Session
	unsubscribe := store.Subscribe(func(s *Session) { seen = append(seen, s) })
	defer unsubscribe()

	sess := &Session{UserID: "u1", Phone: "15551234567", AccessToken: "tok"}
	store.Set(ctx, sess)

	if got := store.Current(); got == nil || got.UserID != "u1" {
		t.Errorf("Current() = %+v, want u1", got)
	}
	if len(seen) != 1 || seen[0].UserID != "u1" {
		t.Errorf("subscriber saw %v, want one u1 session", seen)
	}

	raw, err := cache.GetCache(ctx, CacheKey)
	if err != nil {
		t.Fatalf("session not cached: %v", err)
	}
	var cached Session
	if err := json.Unmarshal(raw, &cached); err != nil {
		t.Fatalf("cached session unreadable: %v", err)
	}
	if cached.UserID != "u1" {
		t.Errorf("cached user = %s, want u1", cached.UserID)
	}

	// Clearing the session clears the cache and notifies with nil
	store.Set(ctx, nil)
	if store.Current() != nil {
		t.Error("expected nil session after clear")
	}
	if _, err := cache.GetCache(ctx, CacheKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("cache should be cleared on sign out")
	}
	if len(seen) != 2 || seen[1] != nil {
		t.Errorf("subscriber saw %v, want trailing nil", seen)
	}
}

func TestStoreUnsubscribeStopsNotifications(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, newCacheOnlyStore(), testLogger())

	calls := 0
	unsubscribe := store.Subscribe(func(*Session) { calls++ })

	store.Set(ctx, &Session{UserID: "u1"})
	unsubscribe()
	store.Set(ctx, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStoreRehydratesFromCache(t *testing.T) {
	ctx := context.Background()
	cache := newCacheOnlyStore()

	raw, _ := json.Marshal(&Session{UserID: "u1", Phone: "15551234567", AccessToken: "tok"})
	if err := cache.PutCache(ctx, CacheKey, raw); err != nil {
		t.Fatal(err)
	}

	store := NewStore(ctx, cache, testLogger())
	if got := store.Current(); got == nil || got.UserID != "u1" {
		t.Errorf("Current() = %+v, want rehydrated u1", got)
	}
}

func TestStoreDiscardsCorruptCache(t *testing.T) {
	ctx := context.Background()
	cache := newCacheOnlyStore()
	if err := cache.PutCache(ctx, CacheKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	store := NewStore(ctx, cache, testLogger())
	if store.Current() != nil {
		t.Error("corrupt cache must not produce a session")
	}
	if _, err := cache.GetCache(ctx, CacheKey); !errors.Is(err, storage.ErrNotFound) {
		t.Error("corrupt cache entry should be deleted")
	}
}

func TestStoreReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token keeps the session", func(t *testing.T) {
		store := NewStore(ctx, newCacheOnlyStore(), testLogger())
		store.Set(ctx, &Session{UserID: "u1", Phone: "15551234567", AccessToken: "tok"})

		store.Reconcile(ctx, stubAuthority{userID: "u1", phone: "15551234567"})
		if store.Current() == nil {
			t.Error("valid session was cleared")
		}
	})

	t.Run("invalid token signs out", func(t *testing.T) {
		cache := newCacheOnlyStore()
		store := NewStore(ctx, cache, testLogger())
		store.Set(ctx, &Session{UserID: "u1", AccessToken: "tok"})

		store.Reconcile(ctx, stubAuthority{err: errors.New("expired")})
		if store.Current() != nil {
			t.Error("invalid session should be cleared")
		}
		if _, err := cache.GetCache(ctx, CacheKey); !errors.Is(err, storage.ErrNotFound) {
			t.Error("cache should be cleared too")
		}
	})

	t.Run("claim mismatch signs out", func(t *testing.T) {
		store := NewStore(ctx, newCacheOnlyStore(), testLogger())
		store.Set(ctx, &Session{UserID: "u1", Phone: "15551234567", AccessToken: "tok"})

		store.Reconcile(ctx, stubAuthority{userID: "someone-else", phone: "15551234567"})
		if store.Current() != nil {
			t.Error("mismatched session should be cleared")
		}
	})

	t.Run("no session is a no-op", func(t *testing.T) {
		store := NewStore(ctx, newCacheOnlyStore(), testLogger())
		store.Reconcile(ctx, stubAuthority{err: errors.New("should not matter")})
		if store.Current() != nil {
			t.Error("still no session expected")
		}
	})
}
