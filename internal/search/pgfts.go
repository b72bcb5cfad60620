package search

import (
	"context"
	"fmt"
	"strings"

	"communitydms/api/internal/store"
)

const reindexBatch = 100

// PgFTS implements Searcher on top of the store's document listing, which
// matches against the documents.search_vector column.
type PgFTS struct {
	store store.Store
}

func NewPgFTS(st store.Store) *PgFTS {
	return &PgFTS{store: st}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	page := q.Page
	page.Limit = q.limit()

	docs, total, err := p.store.ListDocuments(ctx, store.DocumentFilter{
		Search:     q.Text,
		Visibility: q.Visibility,
		SortBy:     "updated_at",
		Page:       page,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		results = append(results, Result{
			ID:           doc.ID,
			Title:        doc.Title,
			Slug:         doc.Slug,
			Snippet:      doc.Excerpt,
			Status:       string(doc.Status),
			CategoryID:   doc.CategoryID,
			CategoryName: doc.CategoryName,
			IsPublic:     doc.IsPublic,
			UpdatedAt:    doc.UpdatedAt,
		})
	}
	return results, total, nil
}

// LoadAllRecords returns every non-archived document for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	records := make([]DocumentRecord, 0)
	for number := 1; ; number++ {
		docs, total, err := p.store.ListDocuments(ctx, store.DocumentFilter{
			SortBy:    "created_at",
			SortOrder: "asc",
			Page:      store.Page{Number: number, Limit: reindexBatch},
		})
		if err != nil {
			return nil, fmt.Errorf("load documents: %w", err)
		}
		for _, doc := range docs {
			records = append(records, RecordFromDocument(doc))
		}
		if len(docs) < reindexBatch || len(records) >= total {
			return records, nil
		}
	}
}
