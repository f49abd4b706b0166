// Package store - testcontainer utilities for integration tests.
//go:build integration || !unit

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresContainer holds a PostgreSQL testcontainer instance.
type TestPostgresContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupPostgresContainer starts a PostgreSQL testcontainer for
// integration tests that need a real database.
func SetupPostgresContainer(t *testing.T) *TestPostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dealwatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("failed to ping database: %v", err)
	}

	tc := &TestPostgresContainer{Container: container, Pool: pool, ConnStr: connStr}
	t.Cleanup(tc.Close)
	return tc
}

// CreateTestSchema creates the minimal schema used by store tests.
func (tc *TestPostgresContainer) CreateTestSchema(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	const schema = `
		CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			url TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			image_url TEXT,
			img_hash TEXT,
			brand TEXT,
			category TEXT NOT NULL,
			finger TEXT NOT NULL,
			geoid TEXT NOT NULL,
			avg_price_30d DOUBLE PRECISION,
			min_price_30d BIGINT,
			avg_price_90d DOUBLE PRECISION,
			min_price_90d BIGINT,
			trend_30d DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(source, external_id)
		);

		CREATE TABLE IF NOT EXISTS offers (
			id BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			price BIGINT,
			price_old BIGINT,
			price_final BIGINT,
			seller TEXT,
			seller_rating DOUBLE PRECISION,
			shipping_days INTEGER,
			promo_flags JSONB,
			shipping_included BOOLEAN NOT NULL DEFAULT false,
			price_in_cart BOOLEAN NOT NULL DEFAULT false,
			subscription BOOLEAN NOT NULL DEFAULT false,
			observed_at TIMESTAMPTZ NOT NULL,
			discount_pct DOUBLE PRECISION,
			abs_saving BIGINT,
			score DOUBLE PRECISION,
			fake_msrp BOOLEAN NOT NULL DEFAULT false
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			ts TIMESTAMPTZ NOT NULL,
			price_final BIGINT NOT NULL,
			seller TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_price_history_product_ts ON price_history(product_id, ts);

		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			chat_id TEXT NOT NULL UNIQUE,
			geoid TEXT NOT NULL,
			min_discount INTEGER NOT NULL DEFAULT 0,
			min_score INTEGER NOT NULL DEFAULT 0,
			categories TEXT[] NOT NULL DEFAULT '{}',
			schedule_cron TEXT,
			score_weights_json JSONB,
			active BOOLEAN NOT NULL DEFAULT true
		);

		CREATE TABLE IF NOT EXISTS favorites (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE
		);
	`
	if _, err := tc.Pool.Exec(ctx, schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}
}

// Truncate clears the given tables, cascading to owned rows.
func (tc *TestPostgresContainer) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := tc.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}

func (tc *TestPostgresContainer) Close() {
	if tc.Pool != nil {
		tc.Pool.Close()
	}
	if tc.Container != nil {
		tc.Container.Terminate(context.Background())
	}
}
