package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// WBSStatus is the tri-state WBS (Wohnberechtigungsschein) requirement of a listing.
type WBSStatus int

const (
	WBSUnknown WBSStatus = iota
	WBSRequired
	WBSNotRequired
)

func (s WBSStatus) String() string {
	switch s {
	case WBSRequired:
		return "required"
	case WBSNotRequired:
		return "not required"
	default:
		return "unknown"
	}
}

// Listing is the unified representation of an apartment offer from any source.
// Identity is (Source, ExternalID); ExternalID is the listing's detail URL when
// the site provides one, otherwise a hash-based fallback (see FallbackID).
// Optional numeric attributes are nil when the source did not expose them —
// nil means "unknown" and never participates in range comparisons.
type Listing struct {
	Source     string
	ExternalID string
	Address    string
	Borough    string
	PriceTotal *float64 // warm rent, EUR
	PriceCold  *float64 // cold rent, EUR
	SizeSqm    *float64
	Rooms      *float64
	WBS        WBSStatus
	FirstSeen  time.Time // our clock, set on first encounter, immutable
	LastSeen   time.Time // bumped every cycle the listing is still visible
}

// Key returns the store key for this listing, unique across sources.
func (l Listing) Key() string {
	return l.Source + "|" + l.ExternalID
}

// URL returns the listing's detail URL, or "" if the identifier is a fallback hash.
func (l Listing) URL() string {
	if strings.HasPrefix(l.ExternalID, "http") {
		return l.ExternalID
	}
	return ""
}

// FallbackID derives a stable identifier from listing details for the rare
// source item that carries no URL.
func FallbackID(address string, sqm, priceCold, rooms *float64) string {
	key := fmt.Sprintf("%s-%v-%v-%v", address, fmtPtr(sqm), fmtPtr(priceCold), fmtPtr(rooms))
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

// SourceAdapter produces normalized listings for one configured source.
type SourceAdapter interface {
	Name() string
	FetchListings(ctx context.Context) ([]Listing, error)
}

// Notifier delivers an alert for one listing.
type Notifier interface {
	Notify(l Listing) error
	// Send delivers a free-form message (startup banner, apply confirmations).
	Send(text string) error
}

// Applier attempts one automated application for a listing.
type Applier interface {
	Name() string
	// CanApply reports whether this provider handles the listing's URL.
	CanApply(l Listing) bool
	// Exclusive reports whether submissions must be serialized process-wide
	// (browser-automation providers).
	Exclusive() bool
	Apply(ctx context.Context, l Listing) ApplyResult
}

// ApplyOutcome classifies the result of one submission attempt.
type ApplyOutcome int

const (
	OutcomeSubmitted ApplyOutcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (o ApplyOutcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeRetryable:
		return "retryable-failure"
	default:
		return "terminal-failure"
	}
}

// ApplyResult is what a provider reports back for one attempt.
type ApplyResult struct {
	Outcome ApplyOutcome
	Message string
}

// ListingStore is the durable authority for "already observed" state and
// application-attempt history.
type ListingStore interface {
	// Exists reports whether the identity has been recorded.
	Exists(source, externalID string) (bool, error)
	// UpsertSeen atomically inserts the listing (first_seen = last_seen = now)
	// or bumps last_seen if present. It returns whether this call inserted a
	// new record; concurrent calls with the same identity yield exactly one
	// isNew = true.
	UpsertSeen(l Listing) (isNew bool, stored Listing, err error)
	// RecordAttempt upserts the attempt record for (listing, provider).
	// Transitions are monotone: a submitted or failed-terminal record is
	// never overwritten and the attempt count never decreases.
	RecordAttempt(a ApplicationAttempt) error
	AttemptFor(listingKey, provider string) (*ApplicationAttempt, error)
	// Retryable returns failed-retryable attempts below the attempt bound,
	// joined with their listings, for re-processing on a later cycle.
	Retryable(maxAttempts int) ([]RetryCandidate, error)
	// LoadAll is used at startup and by the review TUI only; the per-cycle
	// new/known decision is always an UpsertSeen round-trip.
	LoadAll() ([]Listing, error)
	Count() (int, error)
}

// AttemptStatus is the lifecycle state of an application attempt.
type AttemptStatus string

const (
	AttemptPending         AttemptStatus = "pending"
	AttemptSubmitted       AttemptStatus = "submitted"
	AttemptFailedRetryable AttemptStatus = "failed-retryable"
	AttemptFailedTerminal  AttemptStatus = "failed-terminal"
)

// Terminal reports whether the status admits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSubmitted || s == AttemptFailedTerminal
}

// ApplicationAttempt records the application history for one (listing, provider)
// pair. At most one record exists per pair.
type ApplicationAttempt struct {
	ListingKey    string
	Provider      string
	Status        AttemptStatus
	AttemptCount  int
	LastAttemptAt *time.Time
	LastError     string
}

// RetryCandidate pairs a retryable attempt with its listing.
type RetryCandidate struct {
	Listing Listing
	Attempt ApplicationAttempt
}
