package dto

import "time"

// TargetStatusDTO represents the result of a target connectivity check
type TargetStatusDTO struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// ColumnDTO represents a target table column
type ColumnDTO struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableDTO represents a target table with its columns
type TableDTO struct {
	Name    string      `json:"name"`
	Columns []ColumnDTO `json:"columns"`
}

// SchemaDTO represents a point-in-time view of the target schema
type SchemaDTO struct {
	Tables     []TableDTO `json:"tables"`
	Hash       string     `json:"hash"`
	CapturedAt time.Time  `json:"captured_at"`
}
