package domain

import (
	"encoding/json"
	"time"
)

// Payload is the raw JSON document returned by the sports API.
type Payload json.RawMessage

// StoredObject identifies an uploaded payload.
type StoredObject struct {
	Bucket     string
	Key        string
	Location   string
	Size       int64
	UploadedAt time.Time
}

// CrawlerStateRunning is the only crawler state that keeps the wait going.
const CrawlerStateRunning = "RUNNING"

// CrawlerDefinition describes the crawler resource the orchestrator manages.
// Its identity is Name; re-running with the same name reuses the resource.
type CrawlerDefinition struct {
	Name         string
	DatabaseName string
	TablePrefix  string
	SourcePath   string
	Role         string
}

// CrawlerStatus is a single observation of the crawler.
type CrawlerStatus struct {
	State           string
	LastCrawlStatus string
	LastCrawlError  string
}

// Query execution states reported by the query engine.
const (
	QueryStateQueued    = "QUEUED"
	QueryStateRunning   = "RUNNING"
	QueryStateSucceeded = "SUCCEEDED"
)

// QueryExecution is a single observation of a submitted query.
type QueryExecution struct {
	ID            string
	State         string
	StateReason   string
	StatementType string
	OutputFile    string
	DataScanned   int64
	EngineTimeMs  int64
}

// InProgress reports whether the execution has not reached a terminal state yet.
func (q QueryExecution) InProgress() bool {
	return q.State == QueryStateQueued || q.State == QueryStateRunning
}

// ResultSet holds the rows returned by a finished query.
type ResultSet struct {
	ExecutionID string     `json:"execution_id"`
	Columns     []string   `json:"columns"`
	Rows        [][]string `json:"rows"`
}
