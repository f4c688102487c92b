package db

import (
	"time"
)

// RPCCall is one proxied gateway call. It carries no invoice data.
type RPCCall struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Method       string    `json:"method" db:"method"`
	Route        string    `json:"route" db:"route"`
	Status       int       `json:"status" db:"status"`
	DurationMs   int64     `json:"duration_ms" db:"duration_ms"`
	ErrorCode    int       `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
}

// MethodStats aggregates calls for a single RPC method
type MethodStats struct {
	Method        string  `json:"method"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs int64   `json:"max_duration_ms"`
}
