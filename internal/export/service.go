package export

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"communitydms/api/internal/forms"
	"communitydms/api/internal/markdown"
	"communitydms/api/internal/util"
)

// Service renders documents to HTML and PDF. Cache and Archive are optional.
type Service struct {
	renderer *markdown.Renderer
	printer  Printer
	cache    Cache
	archive  Archive
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new export service. A nil printer makes every PDF
// request fail with ErrPDFDependencyMissing while previews keep working.
func NewService(renderer *markdown.Renderer, printer Printer, opts ...Option) *Service {
	s := &Service{
		renderer: renderer,
		printer:  printer,
		logger:   util.DiscardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenderHTML builds the printable page. Inline placeholders become widgets
// and the remaining fields are listed after the content.
func (s *Service) RenderHTML(doc Document, fields []forms.Field, fillable bool) (string, error) {
	byName := make(map[string]forms.Field, len(fields))
	for _, f := range fields {
		byName[f.Common().Name] = f
	}
	rendered, used, err := s.renderer.RenderWithFields(doc.ContentMarkdown, func(name string) (string, bool) {
		f, ok := byName[name]
		if !ok {
			return "", false
		}
		return string(Widget(f, fillable)), true
	})
	if err != nil {
		return "", err
	}

	var extra []template.HTML
	for _, f := range fields {
		if !used[f.Common().Name] {
			extra = append(extra, Widget(f, fillable))
		}
	}

	html, err := RenderDocumentHTML(TemplateData{
		Title:        doc.Title,
		CategoryName: doc.CategoryName,
		AuthorName:   doc.AuthorName,
		Status:       doc.Status,
		UpdatedAt:    doc.UpdatedAt,
		ApprovedAt:   doc.ApprovedAt,
		ContentHTML:  template.HTML(rendered.HTML),
		ExtraFields:  extra,
		Fillable:     fillable,
	})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}

// Generate returns the PDF for doc. Order: cache, render, print, cache
// store, archive. Cache and archive failures are logged and ignored.
func (s *Service) Generate(ctx context.Context, doc Document, fields []forms.Field, fillable bool) (*Result, error) {
	if fillable && len(fields) == 0 {
		return nil, ErrNoFillableFields
	}
	filename := pdfFilename(doc.Title, fillable)
	key := CacheKey(doc.ID, doc.UpdatedAt, fillable)

	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("pdf cache lookup failed", "document_id", doc.ID, "error", err)
		} else if ok {
			return &Result{Data: data, Filename: filename, MimeType: "application/pdf", Cached: true}, nil
		}
	}

	if s.printer == nil {
		return nil, ErrPDFDependencyMissing
	}

	html, err := s.RenderHTML(doc, fields, fillable)
	if err != nil {
		return nil, err
	}

	data, err := s.printer.Print(ctx, html)
	if err != nil {
		if !errors.Is(err, ErrPDFUnavailable) {
			err = fmt.Errorf("%w: %v", ErrPDFUnavailable, err)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, data); err != nil {
			s.logger.Warn("pdf cache store failed", "document_id", doc.ID, "error", err)
		}
	}
	if s.archive != nil {
		if err := s.archive.Put(ctx, ArchiveKey(doc.ID, filename, s.now().Unix()), data); err != nil {
			s.logger.Warn("pdf archive failed", "document_id", doc.ID, "error", err)
		}
	}

	return &Result{Data: data, Filename: filename, MimeType: "application/pdf"}, nil
}
