package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	conn *sql.DB
}

// NewDatabase creates a new database connection and initializes tables
func NewDatabase(dbPath string) (*Database, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &Database{conn: conn}
	if err := db.initTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// initTables creates all required tables
func (db *Database) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rpc_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			method TEXT NOT NULL,
			route TEXT NOT NULL,
			status INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error_code INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		);`,

		`CREATE INDEX IF NOT EXISTS idx_rpc_calls_timestamp ON rpc_calls(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_rpc_calls_method ON rpc_calls(method);`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// InsertRPCCall records a proxied call and sets its ID
func (db *Database) InsertRPCCall(call *RPCCall) error {
	result, err := db.conn.Exec(`
		INSERT INTO rpc_calls
		(timestamp, method, route, status, duration_ms, error_code, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		call.Timestamp.UTC(),
		call.Method,
		call.Route,
		call.Status,
		call.DurationMs,
		call.ErrorCode,
		call.ErrorMessage,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	call.ID = id
	return nil
}

// GetRecentRPCCalls retrieves the most recent calls, newest first
func (db *Database) GetRecentRPCCalls(limit int) ([]RPCCall, error) {
	rows, err := db.conn.Query(`
		SELECT id, timestamp, method, route, status, duration_ms, error_code, COALESCE(error_message, '')
		FROM rpc_calls
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := []RPCCall{}
	for rows.Next() {
		var c RPCCall
		err := rows.Scan(
			&c.ID, &c.Timestamp, &c.Method, &c.Route,
			&c.Status, &c.DurationMs, &c.ErrorCode, &c.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}

	return calls, rows.Err()
}

// GetRPCCallStats aggregates calls per method since the given time
func (db *Database) GetRPCCallStats(since time.Time) ([]MethodStats, error) {
	rows, err := db.conn.Query(`
		SELECT
			method,
			COUNT(*) as calls,
			SUM(CASE WHEN status = 200 THEN 0 ELSE 1 END) as failures,
			AVG(duration_ms) as avg_duration_ms,
			MAX(duration_ms) as max_duration_ms
		FROM rpc_calls
		WHERE timestamp >= ?
		GROUP BY method
		ORDER BY method ASC
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []MethodStats{}
	for rows.Next() {
		var s MethodStats
		if err := rows.Scan(&s.Method, &s.Calls, &s.Failures, &s.AvgDurationMs, &s.MaxDurationMs); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// PruneRPCCalls deletes calls recorded before the given time and returns how many were removed
func (db *Database) PruneRPCCalls(before time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM rpc_calls WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
