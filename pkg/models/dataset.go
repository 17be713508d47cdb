package models

import (
	"time"

	"github.com/google/uuid"
)

// Merge strategies for combining per-source tables.
const (
	StrategyLatestWins      = "latest_wins"
	StrategyFirstOccurrence = "first_occurrence"
)

// LineShare is one production line's share of a dataset.
type LineShare struct {
	Line       string  `json:"line"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DedupInfo records how duplicates were resolved for a dataset.
type DedupInfo struct {
	UniqueIdentifier  string  `json:"unique_identifier"`
	RequestedStrategy string  `json:"requested_strategy"`
	Strategy          string  `json:"strategy"`
	TimestampColumn   *string `json:"timestamp_column,omitempty"`
}

// DatasetMetadata describes a combined dataset. It is written once per
// combination run and replaced only by a later run under the same name.
type DatasetMetadata struct {
	ID                uuid.UUID   `json:"id"`
	Name              string      `json:"name"`
	Lines             []string    `json:"lines"`
	InitialCount      int         `json:"total_records_initial"`
	FinalCount        int         `json:"total_records_final"`
	DuplicatesRemoved int         `json:"duplicates_removed"`
	Dedup             DedupInfo   `json:"deduplication_info"`
	LineDistribution  []LineShare `json:"line_distribution"`
	Columns           []string    `json:"columns"`
	Path              string      `json:"data_file"`
	CreatedAt         time.Time   `json:"created_at"`
}

// SourceStatus is the per-source outcome of a fetch.
type SourceStatus struct {
	Source   string        `json:"source"`
	Status   string        `json:"status"` // "ok", "empty", "failed", "skipped"
	Rows     int           `json:"rows"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Source status values.
const (
	SourceOK      = "ok"
	SourceEmpty   = "empty"
	SourceFailed  = "failed"
	SourceSkipped = "skipped"
)

// SourceInfo describes a configured source without credentials.
type SourceInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	Table       string `json:"table"`
	Credentials string `json:"credentials"` // "ok", "missing" or "not_required"
}

// Credential states reported in SourceInfo.
const (
	CredentialsOK          = "ok"
	CredentialsMissing     = "missing"
	CredentialsNotRequired = "not_required"
)

// ProductMatch is one product value found by a product search.
type ProductMatch struct {
	ProductName     string   `json:"product_name"`
	TotalCount      int      `json:"total_count"`
	ProductionLines int      `json:"production_lines"`
	Lines           []string `json:"lines"`
}
