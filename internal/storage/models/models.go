package models

import (
	"encoding/json"
	"time"
)

// KeywordRecord is a tracked market term. Identity is immutable; the signal
// scores are refreshed by external ingestion jobs and read-only here.
type KeywordRecord struct {
	ID               string
	Term             string
	Marketplace      string
	DemandScore      float64
	CompetitionScore float64
	TrendMomentum    float64
	EngagementScore  float64
	OpportunityScore float64
	UpdatedAt        time.Time
}

// MetricSnapshot is an append-only time-stamped observation for a keyword.
// Granularity is "daily" or "weekly".
type MetricSnapshot struct {
	ID          int64
	KeywordID   string
	Granularity string
	Metrics     map[string]float64
	ObservedAt  time.Time
}

type PredictionRecord struct {
	ID          string
	KeywordID   string
	Horizon     string
	Metrics     map[string]float64
	GeneratedAt time.Time
}

type RiskRule struct {
	ID          string
	Name        string
	Severity    string
	Marketplace string
	Description string
}

type RiskEvent struct {
	ID          int64
	KeywordID   string
	RuleID      string
	Marketplace string
	Detail      string
	OccurredAt  time.Time
}

// CorpusChunk is a retrievable unit of grounding knowledge. Chunk text is
// always present; the embedding may be absent, in which case the chunk is
// eligible for lexical ranking only. The rank fields are populated at query
// time by the hybrid search and are zero on stored rows.
type CorpusChunk struct {
	ID            string
	Scope         string
	SourceType    string
	Capability    string
	Marketplace   string
	Language      string
	Chunk         string
	HasEmbedding  bool
	CreatedAt     time.Time
	LexicalRank   int
	VectorRank    int
	CombinedScore float64
}

// CacheEntry maps (insight type, input hash) to a generated output. At most
// one ready row exists per key; expiry is lazy, by timestamp comparison.
type CacheEntry struct {
	InsightType string
	InputHash   string
	UserID      string
	Context     json.RawMessage
	Output      json.RawMessage
	Status      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// QuotaCounter is the running count for one (user, period, key). The period
// start is the first calendar day of the UTC month.
type QuotaCounter struct {
	UserID      string
	PeriodStart time.Time
	QuotaKey    string
	Count       int
}

// UsageEvent is an immutable audit row written once per orchestration run.
type UsageEvent struct {
	ID           int64
	UserID       string
	Capability   string
	CacheHit     bool
	LatencyMS    int
	TokensIn     int
	TokensOut    int
	CostCents    int
	ModelVersion string
	PlanCode     string
	CreatedAt    time.Time
}

// Reference is a typed pointer into one of the context entities that
// justifies a generated insight.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// InsightSnapshot is the durable audit record of one generated insight.
// Created only on runs that reach generation, never on cache hits.
type InsightSnapshot struct {
	ID          string
	UserID      string
	Capability  string
	Scope       string
	Marketplace string
	Metrics     json.RawMessage
	Output      json.RawMessage
	References  []Reference
	CreatedAt   time.Time
}

type Notification struct {
	ID         int64
	UserID     string
	Kind       string
	Title      string
	Body       string
	CreatedAt  time.Time
}

type User struct {
	ID       string
	PlanCode string
}

type PlanLimit struct {
	PlanCode string
	QuotaKey string
	Limit    int
}
