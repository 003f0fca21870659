package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the generated tasks.fts column.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit, offset := normalizePage(q)

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text, q.UserID}
	where := "t.user_id = $2 AND t.fts @@ " + tsQuery
	if q.ProjectID != "" {
		args = append(args, q.ProjectID)
		where += " AND t.project_id = $3"
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.project_id, t.content,
			ts_headline('simple', t.content || ' ' || t.comment, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			t.completed,
			count(*) OVER () AS total
		FROM tasks t
		WHERE %s
		ORDER BY ts_rank(t.fts, %s) DESC, t.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Content, &r.Snippet, &r.Completed, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadTaskRecords returns every task for full reindexing.
func (p *PgFTS) LoadTaskRecords(ctx context.Context) ([]TaskRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, project_id, content, comment, completed
		FROM tasks
	`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	records := make([]TaskRecord, 0)
	for rows.Next() {
		var r TaskRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.ProjectID, &r.Content, &r.Comment, &r.Completed); err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task records: %w", err)
	}
	return records, nil
}
