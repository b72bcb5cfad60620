// Package export renders documents, with their fillable fields, to HTML and
// PDF.
package export

import (
	"errors"
	"time"
)

// Document is the subset of a stored document the templates need.
type Document struct {
	ID              string
	Title           string
	CategoryName    string
	AuthorName      string
	Status          string
	ContentMarkdown string
	ApprovedAt      *time.Time
	UpdatedAt       time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	Cached   bool
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrPDFUnavailable wraps any failure of the headless browser, including timeouts.
	ErrPDFUnavailable = errors.New("pdf generation unavailable")
	// ErrNoFillableFields is returned for a fillable export of a document without fields.
	ErrNoFillableFields = errors.New("document has no fillable fields")
)
