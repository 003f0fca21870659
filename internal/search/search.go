package search

import "context"

// Result is a single task hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
	Snippet   string `json:"snippet"`
	Completed bool   `json:"completed"`
}

// Query describes a search request. UserID is required; results never cross
// assignees.
type Query struct {
	UserID    string
	Text      string
	ProjectID string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	Content   string `json:"content"`
	Comment   string `json:"comment"`
	Completed bool   `json:"completed"`
}

func normalizePage(q Query) (int, int) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
