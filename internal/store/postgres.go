package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/wohnblick/wohnblick/internal/model"
)

// Ensure PostgresStore implements model.ListingStore.
var _ model.ListingStore = (*PostgresStore)(nil)

// PostgresStore is the Postgres-backed listing store, for deployments where
// the bot shares a database with other tooling. Semantics match SQLiteStore.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	borough     TEXT NOT NULL DEFAULT '',
	price_total NUMERIC(10,2),
	price_cold  NUMERIC(10,2),
	size_sqm    NUMERIC(7,2),
	rooms       NUMERIC(4,1),
	wbs         INTEGER NOT NULL DEFAULT 0,
	first_seen  TIMESTAMPTZ NOT NULL,
	last_seen   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, external_id)
);
CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source);

CREATE TABLE IF NOT EXISTS application_attempts (
	listing_key     TEXT NOT NULL,
	provider        TEXT NOT NULL,
	status          TEXT NOT NULL,
	attempt_count   INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMPTZ,
	last_error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (listing_key, provider)
);
`

// NewPostgresStore connects to Postgres, retrying the initial ping while the
// database comes up, and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres after retries: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Exists(source, externalID string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM listings WHERE source = $1 AND external_id = $2",
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

func (s *PostgresStore) UpsertSeen(l model.Listing) (bool, model.Listing, error) {
	now := time.Now().UTC()

	res, err := s.db.Exec(`
		INSERT INTO listings
			(source, external_id, address, borough, price_total, price_cold, size_sqm, rooms, wbs, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source, external_id) DO NOTHING`,
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

	row := s.db.QueryRow(`
		UPDATE listings
		SET address = $1, borough = $2, price_total = $3, price_cold = $4, size_sqm = $5, rooms = $6, wbs = $7, last_seen = $8
		WHERE source = $9 AND external_id = $10
		RETURNING source, external_id, address, borough, price_total, price_cold, size_sqm, rooms, wbs, first_seen, last_seen`,
		l.Address, l.Borough,
		nullFloat(l.PriceTotal), nullFloat(l.PriceCold), nullFloat(l.SizeSqm), nullFloat(l.Rooms),
		int(l.WBS), now, l.Source, l.ExternalID,
	)
	stored, err := scanListing(row)
	if err != nil {
		return false, model.Listing{}, fmt.Errorf("touching %s: %w", l.Key(), err)
	}
	return false, stored, nil
}

func (s *PostgresStore) RecordAttempt(a model.ApplicationAttempt) error {
	_, err := s.db.Exec(`
		INSERT INTO application_attempts
			(listing_key, provider, status, attempt_count, last_attempt_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (listing_key, provider) DO UPDATE SET
			status          = excluded.status,
			attempt_count   = GREATEST(application_attempts.attempt_count, excluded.attempt_count),
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

func (s *PostgresStore) AttemptFor(listingKey, provider string) (*model.ApplicationAttempt, error) {
	row := s.db.QueryRow(`
		SELECT listing_key, provider, status, attempt_count, last_attempt_at, last_error
		FROM application_attempts WHERE listing_key = $1 AND provider = $2`,
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

func (s *PostgresStore) Retryable(maxAttempts int) ([]model.RetryCandidate, error) {
	rows, err := s.db.Query(`
		SELECT l.source, l.external_id, l.address, l.borough, l.price_total, l.price_cold, l.size_sqm, l.rooms, l.wbs, l.first_seen, l.last_seen,
		       a.listing_key, a.provider, a.status, a.attempt_count, a.last_attempt_at, a.last_error
		FROM application_attempts a
		JOIN listings l ON a.listing_key = l.source || '|' || l.external_id
		WHERE a.status = 'failed-retryable' AND a.attempt_count < $1`,
		maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("loading retryable attempts: %w", err)
	}
	defer rows.Close()

	var out []model.RetryCandidate
	for rows.Next() {
		var (
			l      model.Listing
			a      model.ApplicationAttempt
			pt, pc sql.NullFloat64
			sq, rm sql.NullFloat64
			wbs    int
			status string
			lastAt sql.NullTime
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

func (s *PostgresStore) LoadAll() ([]model.Listing, error) {
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

func (s *PostgresStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM listings").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting listings: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
