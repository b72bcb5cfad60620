package search

import (
	"context"
	"log/slog"
	"sync"

	"communitydms/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search.
type Service struct {
	engine   Engine
	fallback *PgFTS
	logger   *slog.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. engine may be nil when Meilisearch is
// not configured.
func NewService(engine Engine, fallback *PgFTS, logger *slog.Logger) *Service {
	return &Service{engine: engine, fallback: fallback, logger: logger}
}

// Search tries the engine if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", "error", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument indexes a document in the background. Archived documents are
// removed instead.
func (s *Service) IndexDocument(doc store.Document) {
	if doc.Status == store.StatusArchived {
		s.DeleteDocument(doc.ID)
		return
	}
	if !s.engineReady() {
		return
	}
	record := RecordFromDocument(doc)
	s.background(func() {
		if err := s.engine.IndexDocument(record); err != nil {
			s.logger.Warn("index document", "document_id", record.ID, "error", err)
		}
	})
}

// DeleteDocument removes a document from the index in the background.
func (s *Service) DeleteDocument(id string) {
	if !s.engineReady() {
		return
	}
	s.background(func() {
		if err := s.engine.DeleteDocument(id); err != nil {
			s.logger.Warn("delete document from index", "document_id", id, "error", err)
		}
	})
}

// ReindexAll reads every live document from Postgres and pushes it to the
// engine.
func (s *Service) ReindexAll(ctx context.Context) error {
	if !s.engineReady() || s.fallback == nil {
		return nil
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		return err
	}
	return s.engine.IndexDocuments(records)
}

// Wait blocks until background index writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

func (s *Service) background(fn func()) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		fn()
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
