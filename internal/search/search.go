package search

import (
	"context"
	"time"

	"communitydms/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Snippet      string    `json:"snippet"`
	Status       string    `json:"status"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	IsPublic     bool      `json:"is_public"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Query describes a search request. Visibility carries the same restriction
// used for document listings.
type Query struct {
	Text       string
	Visibility store.Visibility
	Page       store.Page
}

func (q Query) limit() int {
	if q.Page.Limit <= 0 {
		return 20
	}
	return q.Page.Limit
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

// Engine is a searcher that also owns an index.
type Engine interface {
	Searcher
	IndexDocument(doc DocumentRecord) error
	IndexDocuments(docs []DocumentRecord) error
	DeleteDocument(id string) error
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Excerpt      string `json:"excerpt"`
	Content      string `json:"content"`
	Status       string `json:"status"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	AuthorID     string `json:"author_id"`
	IsPublic     bool   `json:"is_public"`
	UpdatedAt    int64  `json:"updated_at"`
}

func RecordFromDocument(doc store.Document) DocumentRecord {
	return DocumentRecord{
		ID:           doc.ID,
		Title:        doc.Title,
		Slug:         doc.Slug,
		Excerpt:      doc.Excerpt,
		Content:      doc.ContentMarkdown,
		Status:       string(doc.Status),
		CategoryID:   doc.CategoryID,
		CategoryName: doc.CategoryName,
		AuthorID:     doc.AuthorID,
		IsPublic:     doc.IsPublic,
		UpdatedAt:    doc.UpdatedAt.Unix(),
	}
}
