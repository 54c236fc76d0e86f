package store

import "github.com/wohnblick/wohnblick/internal/model"

// NopStore is a no-op store used in check mode. It reports every listing as
// known so a one-shot check produces no notifications or applications and
// persists nothing.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) Exists(source, externalID string) (bool, error) { return true, nil }

func (s *NopStore) UpsertSeen(l model.Listing) (bool, model.Listing, error) {
	return false, l, nil
}

func (s *NopStore) RecordAttempt(a model.ApplicationAttempt) error { return nil }

func (s *NopStore) AttemptFor(listingKey, provider string) (*model.ApplicationAttempt, error) {
	return nil, nil
}

func (s *NopStore) Retryable(maxAttempts int) ([]model.RetryCandidate, error) { return nil, nil }

func (s *NopStore) LoadAll() ([]model.Listing, error) { return nil, nil }

// Count reports a non-empty store so check mode never triggers baseline seeding.
func (s *NopStore) Count() (int, error) { return 1, nil }
