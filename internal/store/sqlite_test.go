package store

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wohnblick/wohnblick/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func floatPtr(v float64) *float64 { return &v }

func sampleListing(source, id string) model.Listing {
	return model.Listing{
		Source:     source,
		ExternalID: id,
		Address:    "Musterstraße 1, 10115 Berlin",
		Borough:    "Mitte",
		PriceTotal: floatPtr(1200),
		SizeSqm:    floatPtr(60),
		Rooms:      floatPtr(2),
		WBS:        model.WBSNotRequired,
	}
}

func TestUpsertSeen_NewThenKnown(t *testing.T) {
	s := newTestStore(t)
	l := sampleListing("wbm", "https://www.wbm.de/wohnungen/angebot-1")

	isNew, stored, err := s.UpsertSeen(l)
	if err != nil {
		t.Fatalf("UpsertSeen: %v", err)
	}
	if !isNew {
		t.Error("first UpsertSeen should report isNew = true")
	}
	if stored.FirstSeen.IsZero() || !stored.FirstSeen.Equal(stored.LastSeen) {
		t.Errorf("first insert should set first_seen == last_seen, got %v / %v", stored.FirstSeen, stored.LastSeen)
	}

	isNew, stored2, err := s.UpsertSeen(l)
	if err != nil {
		t.Fatalf("second UpsertSeen: %v", err)
	}
	if isNew {
		t.Error("second UpsertSeen should report isNew = false")
	}
	if stored2.LastSeen.Before(stored.LastSeen) {
		t.Errorf("last_seen must not decrease: %v < %v", stored2.LastSeen, stored.LastSeen)
	}
	if !stored2.FirstSeen.Equal(stored.FirstSeen) {
		t.Errorf("first_seen must be immutable: %v != %v", stored2.FirstSeen, stored.FirstSeen)
	}
}

func TestUpsertSeen_ConcurrentSameIdentity(t *testing.T) {
	s := newTestStore(t)
	l := sampleListing("wbm", "https://www.wbm.de/wohnungen/angebot-2")

	var newCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, _, err := s.UpsertSeen(l)
			if err != nil {
				t.Errorf("UpsertSeen: %v", err)
				return
			}
			if isNew {
				newCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := newCount.Load(); got != 1 {
		t.Errorf("concurrent UpsertSeen reported isNew %d times, want exactly 1", got)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)

	seen, err := s.Exists("wbm", "unknown")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if seen {
		t.Error("Exists should be false for an unknown identity")
	}

	if _, _, err := s.UpsertSeen(sampleListing("wbm", "id-1")); err != nil {
		t.Fatalf("UpsertSeen: %v", err)
	}
	seen, err = s.Exists("wbm", "id-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !seen {
		t.Error("Exists should be true after UpsertSeen")
	}
}

func TestUpsertSeen_PreservesOptionalFields(t *testing.T) {
	s := newTestStore(t)
	l := model.Listing{Source: "inberlinwohnen", ExternalID: "id-nil", Address: "Somewhere"}

	_, stored, err := s.UpsertSeen(l)
	if err != nil {
		t.Fatalf("UpsertSeen: %v", err)
	}
	if stored.PriceTotal != nil || stored.SizeSqm != nil || stored.Rooms != nil {
		t.Error("unset numeric fields must round-trip as nil, not zero")
	}
	if stored.WBS != model.WBSUnknown {
		t.Errorf("WBS = %v, want unknown", stored.WBS)
	}

	_, reloaded, err := s.UpsertSeen(l)
	if err != nil {
		t.Fatalf("second UpsertSeen: %v", err)
	}
	if reloaded.PriceTotal != nil {
		t.Error("nil price must stay nil on the update path")
	}
}

func TestRecordAttempt_MonotoneTransitions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	a := model.ApplicationAttempt{
		ListingKey:    "wbm|id-1",
		Provider:      "wbm",
		Status:        model.AttemptFailedRetryable,
		AttemptCount:  1,
		LastAttemptAt: &now,
		LastError:     "timeout",
	}
	if err := s.RecordAttempt(a); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	a.Status = model.AttemptSubmitted
	a.AttemptCount = 2
	a.LastError = ""
	if err := s.RecordAttempt(a); err != nil {
		t.Fatalf("RecordAttempt submitted: %v", err)
	}

	// A later retryable write must not revert the terminal state.
	a.Status = model.AttemptFailedRetryable
	a.AttemptCount = 3
	if err := s.RecordAttempt(a); err != nil {
		t.Fatalf("RecordAttempt after terminal: %v", err)
	}

	got, err := s.AttemptFor("wbm|id-1", "wbm")
	if err != nil {
		t.Fatalf("AttemptFor: %v", err)
	}
	if got == nil {
		t.Fatal("expected an attempt record")
	}
	if got.Status != model.AttemptSubmitted {
		t.Errorf("status = %s, want submitted (terminal states never revert)", got.Status)
	}
	if got.AttemptCount != 2 {
		t.Errorf("attempt_count = %d, want 2", got.AttemptCount)
	}
}

func TestRetryable_FiltersByStatusAndBound(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		if _, _, err := s.UpsertSeen(sampleListing("wbm", id)); err != nil {
			t.Fatalf("UpsertSeen: %v", err)
		}
	}

	attempts := []model.ApplicationAttempt{
		{ListingKey: "wbm|a", Provider: "wbm", Status: model.AttemptFailedRetryable, AttemptCount: 1, LastAttemptAt: &now},
		{ListingKey: "wbm|b", Provider: "wbm", Status: model.AttemptFailedRetryable, AttemptCount: 3, LastAttemptAt: &now},
		{ListingKey: "wbm|c", Provider: "wbm", Status: model.AttemptSubmitted, AttemptCount: 1, LastAttemptAt: &now},
	}
	for _, a := range attempts {
		if err := s.RecordAttempt(a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	got, err := s.Retryable(3)
	if err != nil {
		t.Fatalf("Retryable: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Retryable returned %d candidates, want 1", len(got))
	}
	if got[0].Attempt.ListingKey != "wbm|a" {
		t.Errorf("candidate = %s, want wbm|a", got[0].Attempt.ListingKey)
	}
	if got[0].Listing.ExternalID != "a" {
		t.Errorf("joined listing = %s, want a", got[0].Listing.ExternalID)
	}
}

func TestCountAndLoadAll(t *testing.T) {
	s := newTestStore(t)

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("empty store Count = %d, want 0", count)
	}

	for _, id := range []string{"1", "2"} {
		if _, _, err := s.UpsertSeen(sampleListing("degewo", id)); err != nil {
			t.Fatalf("UpsertSeen: %v", err)
		}
	}

	count, err = s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}

	all, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("LoadAll returned %d listings, want 2", len(all))
	}
}
