package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueryRecord is one completed query with its answer and source labels,
// kept for auditing which materials answers were drawn from.
type QueryRecord struct {
	ID        string
	CreatedAt time.Time
	SessionID string
	UserQuery string
	Answer    string
	Sources   []string
}

// LogQuery appends a completed query to the query log.
func (x *Index) LogQuery(rec QueryRecord) error {
	sources := rec.Sources
	if sources == nil {
		sources = []string{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshalling sources: %w", err)
	}

	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = x.db.Exec(`
		INSERT INTO query_log (id, created_at, session_id, user_query, answer, sources)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, createdAt.Format(time.RFC3339), rec.SessionID, rec.UserQuery, rec.Answer, string(b),
	)
	return err
}

// RecentQueries returns the most recent query log entries, newest first.
func (x *Index) RecentQueries(limit int) ([]QueryRecord, error) {
	rows, err := x.db.Query(`
		SELECT id, created_at, session_id, user_query, answer, sources
		FROM query_log ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []QueryRecord
	for rows.Next() {
		var r QueryRecord
		var createdAt, sources string
		if err := rows.Scan(&r.ID, &createdAt, &r.SessionID, &r.UserQuery, &r.Answer, &sources); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
			return nil, fmt.Errorf("parsing sources: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
