package apply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Coordinator routes listings to application providers and owns the attempt
// lifecycle: it consults the stored attempt history before trying, enforces
// the per-pair attempt bound, and records every outcome durably.
type Coordinator struct {
	appliers     []model.Applier
	store        model.ListingStore
	notifier     model.Notifier
	maxAttempts  int
	applyTimeout time.Duration
	logger       *slog.Logger

	// browserMu serializes providers that drive a real browser.
	browserMu sync.Mutex
}

func NewCoordinator(appliers []model.Applier, store model.ListingStore, notifier model.Notifier, maxAttempts int, applyTimeout time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		appliers:     appliers,
		store:        store,
		notifier:     notifier,
		maxAttempts:  maxAttempts,
		applyTimeout: applyTimeout,
		logger:       logger,
	}
}

// Process runs at most one application attempt for the listing. Listings no
// provider can handle, and listings whose attempt history is already settled,
// are skipped silently. A store failure is returned; a provider failure is
// recorded and absorbed.
func (c *Coordinator) Process(ctx context.Context, l model.Listing) error {
	applier := c.applierFor(l)
	if applier == nil {
		return nil
	}

	prev, err := c.store.AttemptFor(l.Key(), applier.Name())
	if err != nil {
		return fmt.Errorf("load attempt history: %w", err)
	}

	count := 0
	if prev != nil {
		if prev.Status.Terminal() {
			return nil
		}
		count = prev.AttemptCount
	}

	if count >= c.maxAttempts {
		// Bound reached without a settled status; close the record out.
		return c.record(l, applier.Name(), model.AttemptFailedTerminal, count, "attempt bound reached")
	}

	result := c.runAttempt(ctx, applier, l)
	newCount := count + 1

	status := statusFor(result.Outcome, newCount, c.maxAttempts)
	if err := c.record(l, applier.Name(), status, newCount, result.Message); err != nil {
		return err
	}

	c.logger.Info("application attempt finished",
		"listing", l.Key(),
		"provider", applier.Name(),
		"outcome", result.Outcome,
		"status", status,
		"attempt", newCount,
	)

	if status == model.AttemptSubmitted {
		msg := fmt.Sprintf("Bewerbung abgeschickt: %s (%s)", l.Address, applier.Name())
		if err := c.notifier.Send(msg); err != nil {
			c.logger.Error("apply confirmation not delivered", "listing", l.Key(), "error", err)
		}
	}
	return nil
}

// Handles reports whether any provider covers the listing.
func (c *Coordinator) Handles(l model.Listing) bool {
	return c.applierFor(l) != nil
}

func (c *Coordinator) applierFor(l model.Listing) model.Applier {
	for _, a := range c.appliers {
		if a.CanApply(l) {
			return a
		}
	}
	return nil
}

func (c *Coordinator) runAttempt(ctx context.Context, applier model.Applier, l model.Listing) model.ApplyResult {
	if applier.Exclusive() {
		c.browserMu.Lock()
		defer c.browserMu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, c.applyTimeout)
	defer cancel()

	return applier.Apply(ctx, l)
}

func (c *Coordinator) record(l model.Listing, provider string, status model.AttemptStatus, count int, message string) error {
	now := time.Now()
	err := c.store.RecordAttempt(model.ApplicationAttempt{
		ListingKey:    l.Key(),
		Provider:      provider,
		Status:        status,
		AttemptCount:  count,
		LastAttemptAt: &now,
		LastError:     message,
	})
	if err != nil {
		return fmt.Errorf("record attempt for %s: %w", l.Key(), err)
	}
	return nil
}

// statusFor maps a provider outcome to the stored status. A retryable failure
// that exhausts the bound settles as terminal immediately.
func statusFor(outcome model.ApplyOutcome, count, maxAttempts int) model.AttemptStatus {
	switch outcome {
	case model.OutcomeSubmitted:
		return model.AttemptSubmitted
	case model.OutcomeRetryable:
		if count >= maxAttempts {
			return model.AttemptFailedTerminal
		}
		return model.AttemptFailedRetryable
	default:
		return model.AttemptFailedTerminal
	}
}
