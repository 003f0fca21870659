package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const idxTasks = "taskhub_tasks"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the task index. The
// client is returned even when the first health check fails; the health loop
// picks it up once the server is reachable.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.WithField("component", "meilisearch"),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.WithError(err).WithField("url", url).Warn("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxTasks, PrimaryKey: "id"}); err != nil {
		m.log.WithError(err).Debug("create index (may already exist)")
	}

	index := m.client.Index(idxTasks)
	filterable := []interface{}{"userId", "projectId", "completed"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("update filterable attributes")
	}
	searchable := []string{"content", "comment"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	limit, offset := normalizePage(q)

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxTasks,
			Query:                 q.Text,
			Limit:                 int64(limit),
			Offset:                int64(offset),
			AttributesToHighlight: []string{"content", "comment"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			Filter:                taskFilters(q),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	results := make([]Result, 0)
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func taskFilters(q Query) []string {
	filters := []string{fmt.Sprintf("userId = %q", q.UserID)}
	if q.ProjectID != "" {
		filters = append(filters, fmt.Sprintf("projectId = %q", q.ProjectID))
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	content := decodeString(hit, "content")
	return Result{
		ID:        decodeString(hit, "id"),
		ProjectID: decodeString(hit, "projectId"),
		Content:   content,
		Snippet:   firstNonBlank(decodeFormattedString(hit, "content"), decodeFormattedString(hit, "comment"), content),
		Completed: decodeBool(hit, "completed"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeBool(hit meili.Hit, key string) bool {
	raw, ok := hit[key]
	if !ok {
		return false
	}
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	if !strings.Contains(value, "<mark>") {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexTask(task TaskRecord) error {
	_, err := m.client.Index(idxTasks).AddDocuments([]TaskRecord{task}, nil)
	return err
}

func (m *Meili) IndexTasks(tasks []TaskRecord) error {
	if len(tasks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTasks).AddDocuments(tasks, nil)
	return err
}

func (m *Meili) DeleteTask(id string) error {
	_, err := m.client.Index(idxTasks).DeleteDocument(id, nil)
	return err
}
