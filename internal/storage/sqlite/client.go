package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		plan_code TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plan_limits (
		plan_code TEXT NOT NULL,
		quota_key TEXT NOT NULL,
		max_count INTEGER NOT NULL,
		PRIMARY KEY (plan_code, quota_key)
	);

	CREATE TABLE IF NOT EXISTS keywords (
		id TEXT PRIMARY KEY,
		term TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		demand_score REAL DEFAULT 0,
		competition_score REAL DEFAULT 0,
		trend_momentum REAL DEFAULT 0,
		engagement_score REAL DEFAULT 0,
		opportunity_score REAL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_keywords_marketplace ON keywords(marketplace);

	CREATE TABLE IF NOT EXISTS metric_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword_id TEXT NOT NULL,
		granularity TEXT NOT NULL,
		metrics TEXT NOT NULL,
		observed_at INTEGER NOT NULL,
		FOREIGN KEY (keyword_id) REFERENCES keywords(id)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_keyword ON metric_snapshots(keyword_id, granularity, observed_at);

	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		keyword_id TEXT NOT NULL,
		horizon TEXT NOT NULL,
		metrics TEXT NOT NULL,
		generated_at INTEGER NOT NULL,
		FOREIGN KEY (keyword_id) REFERENCES keywords(id)
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_keyword ON predictions(keyword_id, generated_at);

	CREATE TABLE IF NOT EXISTS risk_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		severity TEXT NOT NULL,
		marketplace TEXT,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS risk_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword_id TEXT,
		rule_id TEXT,
		marketplace TEXT,
		detail TEXT,
		occurred_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_risk_events_keyword ON risk_events(keyword_id, occurred_at);

	CREATE TABLE IF NOT EXISTS corpus_chunks (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL DEFAULT 'global',
		source_type TEXT NOT NULL,
		capability TEXT NOT NULL,
		marketplace TEXT,
		language TEXT,
		chunk TEXT NOT NULL,
		has_embedding INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_corpus_capability ON corpus_chunks(capability, marketplace, language);

	CREATE TABLE IF NOT EXISTS insight_cache (
		insight_type TEXT NOT NULL,
		input_hash TEXT NOT NULL,
		user_id TEXT,
		context TEXT,
		output TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ready',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (insight_type, input_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON insight_cache(expires_at);

	CREATE TABLE IF NOT EXISTS quota_counters (
		user_id TEXT NOT NULL,
		period_start INTEGER NOT NULL,
		quota_key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, period_start, quota_key)
	);

	CREATE TABLE IF NOT EXISTS usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER,
		tokens_in INTEGER DEFAULT 0,
		tokens_out INTEGER DEFAULT 0,
		cost_cents INTEGER DEFAULT 0,
		model_version TEXT,
		plan_code TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_events(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_events(created_at, cache_hit);

	CREATE TABLE IF NOT EXISTS insight_snapshots (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		capability TEXT NOT NULL,
		scope TEXT,
		marketplace TEXT,
		metrics TEXT,
		output TEXT NOT NULL,
		refs TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_user ON insight_snapshots(user_id, created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT,
		body TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// placeholders returns "?, ?, ..." for n bound parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
