package tracking

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Event is one row of the history table.
type Event struct {
	ID        int64
	Timestamp time.Time
	Engine    string
	Sink      string
	Kind      string
	Value     int
}

// QueryFilter narrows a history query.
type QueryFilter struct {
	Days   int    // last N days; 0 = no time filter
	Engine string // filter by engine name
	Sink   string // filter by sink description
	Kind   string // "volume" or "mute"
	Limit  int    // maximum results (default 20)
}

// BuildWhereClause constructs the SQL WHERE clause and arguments.
// Simple string building for reliability and predictability.
func (q *QueryFilter) BuildWhereClause(now time.Time) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if q.Days > 0 {
		start := now.AddDate(0, 0, -q.Days)
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, start.Unix())
	}
	if q.Engine != "" {
		clauses = append(clauses, "engine = ?")
		args = append(args, q.Engine)
	}
	if q.Sink != "" {
		clauses = append(clauses, "sink = ?")
		args = append(args, q.Sink)
	}
	if q.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, q.Kind)
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = strings.Join(clauses, " AND ")
	}

	slog.Debug("built where clause", "clause", whereClause, "arg_count", len(args))
	return whereClause, args
}

// QueryEvents returns history rows matching the filter, newest first.
func QueryEvents(db *sql.DB, filter *QueryFilter) ([]Event, error) {
	where, args := filter.BuildWhereClause(time.Now())

	query := "SELECT id, timestamp, engine, sink, kind, value FROM volume_events"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var unix int64
		if err := rows.Scan(&e.ID, &unix, &e.Engine, &e.Sink, &e.Kind, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Timestamp = time.Unix(unix, 0)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return events, nil
}

// PruneOlderThan deletes rows older than the retention window and returns
// the number removed.
func PruneOlderThan(db *sql.DB, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).Unix()
	result, err := db.Exec("DELETE FROM volume_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return result.RowsAffected()
}
