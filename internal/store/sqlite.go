package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Ensure SQLiteStore implements model.ListingStore.
var _ model.ListingStore = (*SQLiteStore)(nil)

// SQLiteStore persists listings and application attempts in a SQLite database.
// It is the single authority for "new vs known": UpsertSeen decides newness
// with a store round-trip, never an in-memory snapshot.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	borough     TEXT NOT NULL DEFAULT '',
	price_total REAL,
	price_cold  REAL,
	size_sqm    REAL,
	rooms       REAL,
	wbs         INTEGER NOT NULL DEFAULT 0,
	first_seen  DATETIME NOT NULL,
	last_seen   DATETIME NOT NULL,
	PRIMARY KEY (source, external_id)
);
CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);

CREATE TABLE IF NOT EXISTS application_attempts (
	listing_key     TEXT NOT NULL,
	provider        TEXT NOT NULL,
	status          TEXT NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	last_attempt_at DATETIME,
	last_error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (listing_key, provider)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent upserts from parallel fetches.
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Exists returns true if the given identity has already been recorded.
func (s *SQLiteStore) Exists(source, externalID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM listings WHERE source = ? AND external_id = ?",
		source, externalID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking seen status for %s/%s: %w", source, externalID, err)
	}
	return true, nil
}

// UpsertSeen inserts the listing if absent, otherwise bumps last_seen and
// refreshes attributes. The insert uses ON CONFLICT DO NOTHING so that
// concurrent calls with the same identity report isNew = true exactly once.
func (s *SQLiteStore) UpsertSeen(l model.Listing) (bool, model.Listing, error) {
	now := time.Now().UTC()

	res, err := s.db.Exec(`
		INSERT INTO listings
			(source, external_id, address, borough, price_total, price_cold, size_sqm, rooms, wbs, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO NOTHING`,
		l.Source, l.ExternalID, l.Address, l.Borough,
		nullFloat(l.PriceTotal), nullFloat(l.PriceCold), nullFloat(l.SizeSqm), nullFloat(l.Rooms),
		int(l.WBS), now, now,
	)
	if err != nil {
		return false, model.Listing{}, fmt.Errorf("upserting %s: %w", l.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, model.Listing{}, fmt.Errorf("upserting %s: %w", l.Key(), err)
	}

	if n == 1 {
		l.FirstSeen = now
		l.LastSeen = now
		return true, l, nil
	}

	_, err = s.db.Exec(`
		UPDATE listings
		SET address = ?, borough = ?, price_total = ?, price_cold = ?, size_sqm = ?, rooms = ?, wbs = ?, last_seen = ?
		WHERE source = ? AND external_id = ?`,
		l.Address, l.Borough,
		nullFloat(l.PriceTotal), nullFloat(l.PriceCold), nullFloat(l.SizeSqm), nullFloat(l.Rooms),
		int(l.WBS), now, l.Source, l.ExternalID,
	)
	if err != nil {
		return false, model.Listing{}, fmt.Errorf("touching %s: %w", l.Key(), err)
	}

	stored, err := s.get(l.Source, l.ExternalID)
	if err != nil {
		return false, model.Listing{}, err
	}
	return false, stored, nil
}

func (s *SQLiteStore) get(source, externalID string) (model.Listing, error) {
	row := s.db.QueryRow(`
		SELECT source, external_id, address, borough, price_total, price_cold, size_sqm, rooms, wbs, first_seen, last_seen
		FROM listings WHERE source = ? AND external_id = ?`,
		source, externalID,
	)
	l, err := scanListing(row)
	if err != nil {
		return model.Listing{}, fmt.Errorf("loading %s/%s: %w", source, externalID, err)
	}
	return l, nil
}

// RecordAttempt upserts the attempt record for (listing, provider).
// The WHERE guard keeps transitions monotone: submitted and failed-terminal
// records are never overwritten, and the attempt count never decreases.
func (s *SQLiteStore) RecordAttempt(a model.ApplicationAttempt) error {
	_, err := s.db.Exec(`
		INSERT INTO application_attempts
			(listing_key, provider, status, attempt_count, last_attempt_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_key, provider) DO UPDATE SET
			status          = excluded.status,
			attempt_count   = MAX(application_attempts.attempt_count, excluded.attempt_count),
			last_attempt_at = excluded.last_attempt_at,
			last_error      = excluded.last_error
		WHERE application_attempts.status NOT IN ('submitted', 'failed-terminal')`,
		a.ListingKey, a.Provider, string(a.Status), a.AttemptCount, nullTime(a.LastAttemptAt), a.LastError,
	)
	if err != nil {
		return fmt.Errorf("recording attempt %s/%s: %w", a.ListingKey, a.Provider, err)
	}
	return nil
}

// AttemptFor returns the attempt record for (listing, provider), or nil if none exists.
func (s *SQLiteStore) AttemptFor(listingKey, provider string) (*model.ApplicationAttempt, error) {
	row := s.db.QueryRow(`
		SELECT listing_key, provider, status, attempt_count, last_attempt_at, last_error
		FROM application_attempts WHERE listing_key = ? AND provider = ?`,
		listingKey, provider,
	)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading attempt %s/%s: %w", listingKey, provider, err)
	}
	return &a, nil
}

// Retryable returns failed-retryable attempts still under the attempt bound,
// joined with their listings.
func (s *SQLiteStore) Retryable(maxAttempts int) ([]model.RetryCandidate, error) {
	rows, err := s.db.Query(`
		SELECT l.source, l.external_id, l.address, l.borough, l.price_total, l.price_cold, l.size_sqm, l.rooms, l.wbs, l.first_seen, l.last_seen,
		       a.listing_key, a.provider, a.status, a.attempt_count, a.last_attempt_at, a.last_error
		FROM application_attempts a
		JOIN listings l ON a.listing_key = l.source || '|' || l.external_id
		WHERE a.status = 'failed-retryable' AND a.attempt_count < ?`,
		maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("loading retryable attempts: %w", err)
	}
	defer rows.Close()

	var out []model.RetryCandidate
	for rows.Next() {
		var (
			l       model.Listing
			a       model.ApplicationAttempt
			pt, pc  sql.NullFloat64
			sq, rm  sql.NullFloat64
			wbs     int
			status  string
			lastAt  sql.NullTime
		)
		if err := rows.Scan(
			&l.Source, &l.ExternalID, &l.Address, &l.Borough, &pt, &pc, &sq, &rm, &wbs, &l.FirstSeen, &l.LastSeen,
			&a.ListingKey, &a.Provider, &status, &a.AttemptCount, &lastAt, &a.LastError,
		); err != nil {
			return nil, fmt.Errorf("scanning retryable attempt: %w", err)
		}
		l.PriceTotal, l.PriceCold, l.SizeSqm, l.Rooms = ptrFloat(pt), ptrFloat(pc), ptrFloat(sq), ptrFloat(rm)
		l.WBS = model.WBSStatus(wbs)
		a.Status = model.AttemptStatus(status)
		a.LastAttemptAt = ptrTime(lastAt)
		out = append(out, model.RetryCandidate{Listing: l, Attempt: a})
	}
	return out, rows.Err()
}

// LoadAll returns every stored listing, newest first.
func (s *SQLiteStore) LoadAll() ([]model.Listing, error) {
	rows, err := s.db.Query(`
		SELECT source, external_id, address, borough, price_total, price_cold, size_sqm, rooms, wbs, first_seen, last_seen
		FROM listings ORDER BY first_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("loading listings: %w", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Count returns the number of stored listings.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM listings").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting listings: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanListing(row scanner) (model.Listing, error) {
	var (
		l              model.Listing
		pt, pc, sq, rm sql.NullFloat64
		wbs            int
	)
	err := row.Scan(&l.Source, &l.ExternalID, &l.Address, &l.Borough, &pt, &pc, &sq, &rm, &wbs, &l.FirstSeen, &l.LastSeen)
	if err != nil {
		return model.Listing{}, err
	}
	l.PriceTotal, l.PriceCold, l.SizeSqm, l.Rooms = ptrFloat(pt), ptrFloat(pc), ptrFloat(sq), ptrFloat(rm)
	l.WBS = model.WBSStatus(wbs)
	return l, nil
}

func scanAttempt(row scanner) (model.ApplicationAttempt, error) {
	var (
		a      model.ApplicationAttempt
		status string
		lastAt sql.NullTime
	)
	err := row.Scan(&a.ListingKey, &a.Provider, &status, &a.AttemptCount, &lastAt, &a.LastError)
	if err != nil {
		return model.ApplicationAttempt{}, err
	}
	a.Status = model.AttemptStatus(status)
	a.LastAttemptAt = ptrTime(lastAt)
	return a, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func ptrFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func ptrTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
