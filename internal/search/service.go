package search

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// Either backend may be nil.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	log   logrus.FieldLogger
}

func NewService(meili *Meili, pgfts *PgFTS, log logrus.FieldLogger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log.WithField("component", "search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WithError(err).Warn("meilisearch error, falling back to pgfts")
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.log.WithError(err).Error("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTask pushes a task to Meilisearch without blocking the caller.
func (s *Service) IndexTask(task TaskRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTask(task); err != nil {
			s.log.WithError(err).WithField("task_id", task.ID).Warn("index task")
		}
	}()
}

func (s *Service) DeleteTask(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTask(id); err != nil {
			s.log.WithError(err).WithField("task_id", id).Warn("delete task from index")
		}
	}()
}

// ReindexAllFromPG reloads every task from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadTaskRecords(ctx)
	if err != nil {
		s.log.WithError(err).Warn("reindex load failed")
		return
	}
	if err := s.meili.IndexTasks(records); err != nil {
		s.log.WithError(err).Warn("reindex tasks")
		return
	}
	s.log.WithField("tasks", len(records)).Info("reindexed tasks")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
