// Package search provides debounced phone-prefix lookup of profiles.
//
// Keystrokes arrive faster than lookups complete, and lookups can complete
// out of order. Every query bumps a generation counter; a lookup's results
// are delivered only if its generation is still the newest when it finishes,
// so a stale response can never overwrite a fresher one regardless of
// completion order.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nkhella/fairshare/internal/models"
)

const defaultDebounce = 500 * time.Millisecond

// Lookup is the profile-store query the searcher debounces.
// Satisfied by storage.Store's SearchProfilesByPhonePrefix.
type Lookup func(ctx context.Context, prefix string) ([]models.Profile, error)

// Searcher debounces prefix queries and publishes results to a single
// subscriber callback. Lookup failures degrade to an empty result set.
type Searcher struct {
	lookup   Lookup
	publish  func(prefix string, results []models.Profile)
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
	wg    sync.WaitGroup
}

// New creates a Searcher that calls publish with the results of the latest
// query. publish runs on the lookup goroutine while the searcher's internal
// lock is held; keep it cheap and never call back into the Searcher from it.
func New(lookup Lookup, publish func(prefix string, results []models.Profile), logger *slog.Logger) *Searcher {
	return &Searcher{
		lookup:   lookup,
		publish:  publish,
		debounce: defaultDebounce,
		logger:   logger,
	}
}

// SetDebounce overrides the debounce window. Zero disables debouncing,
// which tests use to exercise the generation logic directly.
func (s *Searcher) SetDebounce(d time.Duration) {
	s.mu.Lock()
	s.debounce = d
	s.mu.Unlock()
}

// Query schedules a lookup for the prefix after the debounce window,
// superseding any pending or in-flight query. An empty prefix publishes an
// empty result set immediately without a store call. The stored numbers carry
// the US country code, so the query prepends "1" to the typed prefix.
func (s *Searcher) Query(ctx context.Context, prefix string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if prefix == "" {
		s.publish(prefix, nil)
		s.mu.Unlock()
		return
	}

	delay := s.debounce
	if delay <= 0 {
		s.mu.Unlock()
		s.run(ctx, gen, prefix)
		return
	}

	s.timer = time.AfterFunc(delay, func() {
		s.run(ctx, gen, prefix)
	})
	s.mu.Unlock()
}

// Wait blocks until all in-flight lookups have finished. Intended for
// teardown and tests; new queries may still be scheduled afterwards.
func (s *Searcher) Wait() {
	s.wg.Wait()
}

func (s *Searcher) run(ctx context.Context, gen uint64, prefix string) {
	if !s.isLatest(gen) {
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	results, err := s.lookup(ctx, "1"+prefix)
	if err != nil {
		// Search failures degrade to no results; the user just sees an
		// empty list and keeps typing.
		s.logger.Warn("profile search failed", "prefix", prefix, "error", err)
		results = nil
	}

	s.deliver(gen, prefix, results)
}

// deliver publishes under the lock iff gen is still the newest, so the
// staleness check and the publish are atomic with respect to newer queries,
// including empty-prefix ones that publish inline from Query.
func (s *Searcher) deliver(gen uint64, prefix string, results []models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.publish(prefix, results)
}

func (s *Searcher) isLatest(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}
