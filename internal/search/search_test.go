package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nkhella/fairshare/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// publishRecorder collects published result sets.
type publishRecorder struct {
	mu       sync.Mutex
	prefixes []string
	results  [][]models.Profile
}

func (r *publishRecorder) publish(prefix string, results []models.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, prefix)
	r.results = append(r.results, results)
}

func (r *publishRecorder) last() (string, []models.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prefixes) == 0 {
		return "", nil, false
	}
	return r.prefixes[len(r.prefixes)-1], r.results[len(r.results)-1], true
}

func (r *publishRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prefixes)
}

func profileWithPhone(phone string) models.Profile {
	return models.Profile{ID: "id-" + phone, Phone: phone}
}

func TestQueryPublishesResults(t *testing.T) {
	rec := &publishRecorder{}
	var gotPrefix string
	lookup := func(_ context.Context, prefix string) ([]models.Profile, error) {
		gotPrefix = prefix
		return []models.Profile{profileWithPhone("16175550001")}, nil
	}

	s := New(lookup, rec.publish, testLogger())
	s.SetDebounce(0)

	s.Query(context.Background(), "617")
	s.Wait()

	// Country code is prepended before the store sees the prefix
	if gotPrefix != "1617" {
		t.Errorf("lookup prefix = %q, want 1617", gotPrefix)
	}

	prefix, results, ok := rec.last()
	if !ok {
		t.Fatal("nothing published")
	}
	if prefix != "617" || len(results) != 1 {
		t.Errorf("published (%q, %d results)", prefix, len(results))
	}
}

func TestEmptyPrefixShortCircuits(t *testing.T) {
	rec := &publishRecorder{}
	calls := 0
	lookup := func(context.Context, string) ([]models.Profile, error) {
		calls++
		return nil, nil
	}

	s := New(lookup, rec.publish, testLogger())
	s.SetDebounce(0)

	s.Query(context.Background(), "")
	s.Wait()

	if calls != 0 {
		t.Error("empty prefix must not hit the store")
	}
	if _, results, ok := rec.last(); !ok || len(results) != 0 {
		t.Error("empty prefix should publish an empty result set")
	}
}

func TestLookupErrorDegradesToEmpty(t *testing.T) {
	rec := &publishRecorder{}
	lookup := func(context.Context, string) ([]models.Profile, error) {
		return nil, errors.New("store unavailable")
	}

	s := New(lookup, rec.publish, testLogger())
	s.SetDebounce(0)

	s.Query(context.Background(), "617")
	s.Wait()

	prefix, results, ok := rec.last()
	if !ok {
		t.Fatal("failure should still publish")
	}
	if prefix != "617" || results != nil {
		t.Errorf("published (%q, %v), want empty results", prefix, results)
	}
}

// A slow older lookup must not overwrite the results of a newer one, even
// though it completes later.
func TestStaleResponseDiscarded(t *testing.T) {
	rec := &publishRecorder{}

	firstEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	lookup := func(_ context.Context, prefix string) ([]models.Profile, error) {
		if prefix == "1617" {
			close(firstEntered)
			<-releaseFirst
			return []models.Profile{profileWithPhone("16175550001")}, nil
		}
		return []models.Profile{profileWithPhone("16465550002")}, nil
	}

	s := New(lookup, rec.publish, testLogger())
	s.SetDebounce(0)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Query(ctx, "617") // blocks inside lookup
	}()

	<-firstEntered
	s.Query(ctx, "646") // newer query completes immediately

	close(releaseFirst)
	<-done
	s.Wait()

	if rec.count() != 1 {
		t.Fatalf("published %d times, want 1 (stale response discarded)", rec.count())
	}
	prefix, results, _ := rec.last()
	if prefix != "646" || len(results) != 1 || results[0].Phone != "16465550002" {
		t.Errorf("published (%q, %v), want the newer query's results", prefix, results)
	}
}

// Clearing the input while a lookup is in flight publishes the empty set
// immediately; the in-flight results must be dropped, not published after it.
func TestClearedInputSupersedesInflightLookup(t *testing.T) {
	rec := &publishRecorder{}

	entered := make(chan struct{})
	release := make(chan struct{})
	lookup := func(context.Context, string) ([]models.Profile, error) {
		close(entered)
		<-release
		return []models.Profile{profileWithPhone("16175550001")}, nil
	}

	s := New(lookup, rec.publish, testLogger())
	s.SetDebounce(0)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Query(ctx, "617") // blocks inside lookup
	}()

	<-entered
	s.Query(ctx, "") // cleared input publishes empty inline

	close(release)
	<-done
	s.Wait()

	if rec.count() != 1 {
		t.Fatalf("published %d times, want 1 (in-flight result discarded)", rec.count())
	}
	prefix, results, _ := rec.last()
	if prefix != "" || len(results) != 0 {
		t.Errorf("published (%q, %v), want the empty set to stand", prefix, results)
	}
}

func TestDebounceCoalescesKeystrokes(t *testing.T) {
	rec := &publishRecorder{}
	var mu sync.Mutex
	var lookups []string
	lookup := func(_ context.Context, prefix string) ([]models.Profile, error) {
		mu.Lock()
		lookups = append(lookups, prefix)
		mu.Unlock()
		return nil, nil
	}

	s := New(lookup, rec.publish, testLogger())
	s.SetDebounce(20 * time.Millisecond)
	ctx := context.Background()

	// Rapid keystrokes: only the last survives the debounce window
	s.Query(ctx, "6")
	s.Query(ctx, "61")
	s.Query(ctx, "617")

	time.Sleep(100 * time.Millisecond)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(lookups) != 1 || lookups[0] != "1617" {
		t.Errorf("lookups = %v, want exactly [1617]", lookups)
	}
}
