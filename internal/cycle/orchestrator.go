package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wohnblick/wohnblick/internal/apply"
	"github.com/wohnblick/wohnblick/internal/borough"
	"github.com/wohnblick/wohnblick/internal/filter"
	"github.com/wohnblick/wohnblick/internal/model"
)

// Summary reports what one cycle did.
type Summary struct {
	SourcesOK     int
	SourcesFailed int
	Fetched       int
	New           int
	Rejected      int
	Notified      int
	Applied       int
	Retried       int
	Baseline      bool
}

// Orchestrator runs one full cycle: fetch from all sources in parallel,
// persist observations, then notify and apply for listings that are new and
// pass the filter. The store write always precedes any side effect, so a
// crash can only lose an alert, never duplicate one.
type Orchestrator struct {
	adapters     []model.SourceAdapter
	store        model.ListingStore
	rules        filter.Rules
	resolver     *borough.Resolver
	notifier     model.Notifier
	coordinator  *apply.Coordinator
	fetchTimeout time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

func NewOrchestrator(
	adapters []model.SourceAdapter,
	store model.ListingStore,
	rules filter.Rules,
	resolver *borough.Resolver,
	notifier model.Notifier,
	coordinator *apply.Coordinator,
	fetchTimeout time.Duration,
	maxAttempts int,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		adapters:     adapters,
		store:        store,
		rules:        rules,
		resolver:     resolver,
		notifier:     notifier,
		coordinator:  coordinator,
		fetchTimeout: fetchTimeout,
		maxAttempts:  maxAttempts,
		logger:       logger,
	}
}

type fetchResult struct {
	source   string
	listings []model.Listing
	err      error
}

// Run executes one cycle. A failing source is logged and skipped; a failing
// store aborts the cycle before any notification goes out.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var s Summary

	o.retryPass(ctx, &s)

	count, err := o.store.Count()
	if err != nil {
		return s, fmt.Errorf("cycle: counting store: %w", err)
	}
	s.Baseline = count == 0

	results := o.fetchAll(ctx)

	var fresh []model.Listing
	for _, r := range results {
		if r.err != nil {
			s.SourcesFailed++
			o.logger.Error("source fetch failed", "source", r.source, "error", r.err)
			continue
		}
		s.SourcesOK++
		s.Fetched += len(r.listings)

		for _, l := range r.listings {
			o.enrich(&l)
			isNew, stored, err := o.store.UpsertSeen(l)
			if err != nil {
				return s, fmt.Errorf("cycle: recording %s: %w", l.Key(), err)
			}
			if isNew {
				fresh = append(fresh, stored)
			}
		}
	}
	s.New = len(fresh)

	if s.Baseline {
		// First run against an empty store: everything visible right now is
		// pre-existing inventory, not news. Seed silently.
		o.logger.Info("baseline cycle, seeded store without alerts", "listings", s.New)
		return s, nil
	}

	for _, l := range fresh {
		if !o.rules.Accept(l) {
			s.Rejected++
			continue
		}

		if err := o.notifier.Notify(l); err != nil {
			// Alerts are best-effort: log and move on, never re-send.
			o.logger.Error("notification failed", "listing", l.Key(), "error", err)
		} else {
			s.Notified++
		}

		if o.coordinator != nil && o.coordinator.Handles(l) {
			if err := o.coordinator.Process(ctx, l); err != nil {
				return s, fmt.Errorf("cycle: applying for %s: %w", l.Key(), err)
			}
			s.Applied++
		}
	}

	o.logger.Info("cycle complete",
		"sources_ok", s.SourcesOK,
		"sources_failed", s.SourcesFailed,
		"fetched", s.Fetched,
		"new", s.New,
		"rejected", s.Rejected,
		"notified", s.Notified,
		"applied", s.Applied,
	)
	return s, nil
}

// retryPass re-processes application attempts that failed retryably on an
// earlier cycle. It runs before new listings so stale work drains first.
func (o *Orchestrator) retryPass(ctx context.Context, s *Summary) {
	if o.coordinator == nil {
		return
	}

	candidates, err := o.store.Retryable(o.maxAttempts)
	if err != nil {
		o.logger.Error("loading retry candidates failed", "error", err)
		return
	}

	for _, c := range candidates {
		if err := o.coordinator.Process(ctx, c.Listing); err != nil {
			o.logger.Error("retrying application failed", "listing", c.Listing.Key(), "error", err)
			continue
		}
		s.Retried++
	}
}

// fetchAll queries every source concurrently, each under its own timeout.
func (o *Orchestrator) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(o.adapters))

	var wg sync.WaitGroup
	for i, adapter := range o.adapters {
		wg.Add(1)
		go func(i int, adapter model.SourceAdapter) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
			defer cancel()

			listings, err := adapter.FetchListings(fetchCtx)
			results[i] = fetchResult{source: adapter.Name(), listings: listings, err: err}
		}(i, adapter)
	}
	wg.Wait()

	return results
}

// enrich fills in the borough from the address when the source did not name one.
func (o *Orchestrator) enrich(l *model.Listing) {
	if l.Borough != "" || o.resolver == nil {
		return
	}
	l.Borough = borough.Format(o.resolver.FromAddress(l.Address))
}
