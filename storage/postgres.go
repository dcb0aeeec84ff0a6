package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"mls_syncd/models"
)

// PostgresStore persists the canonical Agent and Listing documents.
// Upserts are keyed on the upstream natural keys so repeated identical
// writes are no-ops.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id UUID PRIMARY KEY,
		member_key TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		mls_id TEXT NOT NULL DEFAULT '',
		office_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		last_synced_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY,
		listing_key TEXT NOT NULL UNIQUE,
		list_price DOUBLE PRECISION,
		list_agent_key TEXT NOT NULL DEFAULT '',
		street TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		status TEXT NOT NULL,
		status_history JSONB NOT NULL DEFAULT '[]',
		modification_timestamp TIMESTAMPTZ,
		last_synced_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_listings_agent_key ON listings(list_agent_key);
	CREATE INDEX IF NOT EXISTS idx_listings_last_synced ON listings(last_synced_at DESC);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Agents
// =============================================================================

func (s *PostgresStore) UpsertAgent(ctx context.Context, a *models.Agent) error {
	query := `
		INSERT INTO agents (
			id, member_key, first_name, last_name, full_name, email, mls_id,
			office_name, phone, last_synced_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (member_key) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			mls_id = EXCLUDED.mls_id,
			office_name = EXCLUDED.office_name,
			phone = EXCLUDED.phone,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		a.ID, a.MemberKey, a.FirstName, a.LastName, a.FullName, a.Email, a.MlsID,
		a.OfficeName, a.Phone, a.LastSyncedAt, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
}

func (s *PostgresStore) GetAgentByMemberKey(ctx context.Context, memberKey string) (*models.Agent, error) {
	query := `
		SELECT id, member_key, first_name, last_name, full_name, email, mls_id,
			office_name, phone, last_synced_at, created_at, updated_at
		FROM agents WHERE member_key = $1`

	var a models.Agent
	err := s.pool.QueryRow(ctx, query, memberKey).Scan(
		&a.ID, &a.MemberKey, &a.FirstName, &a.LastName, &a.FullName, &a.Email, &a.MlsID,
		&a.OfficeName, &a.Phone, &a.LastSyncedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// =============================================================================
// Listings
// =============================================================================

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	history, err := json.Marshal(l.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}

	query := `
		INSERT INTO listings (
			id, listing_key, list_price, list_agent_key, street, city, state, zip,
			lat, lng, status, status_history, modification_timestamp,
			last_synced_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (listing_key) DO UPDATE SET
			list_price = EXCLUDED.list_price,
			list_agent_key = EXCLUDED.list_agent_key,
			street = EXCLUDED.street,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip = EXCLUDED.zip,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			status = EXCLUDED.status,
			status_history = EXCLUDED.status_history,
			modification_timestamp = EXCLUDED.modification_timestamp,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		l.ID, l.ListingKey, l.ListPrice, l.ListAgentKey,
		l.Address.Street, l.Address.City, l.Address.State, l.Address.Zip,
		l.Address.Lat, l.Address.Lng, l.Status, history, l.ModificationTimestamp,
		l.LastSyncedAt, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

const listingColumns = `id, listing_key, list_price, list_agent_key, street, city, state, zip,
	lat, lng, status, status_history, modification_timestamp,
	last_synced_at, created_at, updated_at`

func (s *PostgresStore) GetListingByKey(ctx context.Context, listingKey string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE listing_key = $1`

	l, err := scanListing(s.pool.QueryRow(ctx, query, listingKey))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetListingsMissingCoordinates returns listings with a complete street
// address that still lack coordinates, oldest first. Used by the
// geocode backfill worker.
func (s *PostgresStore) GetListingsMissingCoordinates(ctx context.Context, limit int) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE lat IS NULL AND street <> '' AND city <> '' AND state <> '' AND zip <> ''
		ORDER BY last_synced_at ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// UpdateListingCoordinates fills in coordinates without touching any
// other field. Used by the geocode backfill worker.
func (s *PostgresStore) UpdateListingCoordinates(ctx context.Context, id uuid.UUID, lat, lng float64) error {
	query := `UPDATE listings SET lat = $2, lng = $3, updated_at = NOW() WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, lat, lng)
	return err
}

func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&count)
	return count, err
}

// MostRecentSyncTimestamp returns the newest last_synced_at across all
// listings, or nil when nothing has been synced yet.
func (s *PostgresStore) MostRecentSyncTimestamp(ctx context.Context) (*time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(last_synced_at) FROM listings`).Scan(&ts)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var history []byte

	err := row.Scan(
		&l.ID, &l.ListingKey, &l.ListPrice, &l.ListAgentKey,
		&l.Address.Street, &l.Address.City, &l.Address.State, &l.Address.Zip,
		&l.Address.Lat, &l.Address.Lng, &l.Status, &history, &l.ModificationTimestamp,
		&l.LastSyncedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &l.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status history: %w", err)
		}
	}

	return &l, nil
}
