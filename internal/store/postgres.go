package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for events.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// InsertEvents persists a batch in one transaction and returns the events
// that were new. Redelivered events hit the (tenant_id, event_id)
// constraint and are skipped, so a batch retried after a lost response is
// counted once.
func (p *PostgresStore) InsertEvents(ctx context.Context, tenantID string, events []models.Event) ([]models.Event, error) {
	if tenantID == "" {
		return nil, errors.New("tenantID required")
	}
	for _, ev := range events {
		if ev.ID == "" || ev.Name == "" {
			return nil, errors.New("event id and name required")
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := make([]models.Event, 0, len(events))
	for _, ev := range events {
		ok, err := insertEvent(ctx, tx, tenantID, ev)
		if err != nil {
			return nil, fmt.Errorf("inserting event %s: %w", ev.ID, err)
		}
		if ok {
			inserted = append(inserted, ev)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing tx: %w", err)
	}
	return inserted, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, tenantID string, ev models.Event) (bool, error) {
	properties := ev.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return false, err
	}

	// RETURNING 1 only when inserted; duplicates return no rows.
	var one int
	err = tx.QueryRow(ctx, `
		INSERT INTO events(tenant_id, event_id, event_name, ts, user_id, properties)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
		RETURNING 1
	`, tenantID, ev.ID, ev.Name, time.UnixMilli(ev.Timestamp).UTC(), ev.UserID, propsJSON).Scan(&one)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// CountEvents returns the number of events for (tenantID, eventName) in the time window [from,to).
// Using a half-open interval avoids double counting at window boundaries.
func (p *PostgresStore) CountEvents(
	ctx context.Context,
	tenantID string,
	eventName string,
	from time.Time,
	to time.Time,
) (int64, error) {

	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id=$1
		  AND event_name=$2
		  AND ts >= $3
		  AND ts <  $4
	`, tenantID, eventName, from, to).Scan(&count)

	return count, err
}
