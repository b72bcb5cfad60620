package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"communitydms/api/internal/export"
	"communitydms/api/internal/search"
	"communitydms/api/internal/store"
)

func exportDocument(doc store.Document) export.Document {
	return export.Document{
		ID:              doc.ID,
		Title:           doc.Title,
		CategoryName:    doc.CategoryName,
		AuthorName:      doc.AuthorName,
		Status:          string(doc.Status),
		ContentMarkdown: doc.ContentMarkdown,
		ApprovedAt:      doc.ApprovedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// GeneratePDF renders the document to PDF and counts the download.
func (s *Service) GeneratePDF(ctx context.Context, actor Actor, documentID string, fillable bool) (*export.Result, error) {
	doc, err := s.viewableDocument(ctx, actor, documentID)
	if err != nil {
		return nil, err
	}
	if s.export == nil {
		return nil, pdfUnavailableError(export.ErrPDFDependencyMissing)
	}
	records, err := s.store.ListFormFields(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list form fields: %w", err)
	}

	result, err := s.export.Generate(ctx, exportDocument(doc), fieldsFromRecords(records), fillable)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrNoFillableFields):
			return nil, validationError("Document has no fillable fields", nil)
		case errors.Is(err, export.ErrPDFUnavailable), errors.Is(err, export.ErrPDFDependencyMissing):
			s.logger.Warn("pdf generation failed", "document_id", doc.ID, "error", err)
			return nil, pdfUnavailableError(err)
		}
		return nil, fmt.Errorf("generate pdf: %w", err)
	}

	if err := s.store.IncrementDownloadCount(ctx, doc.ID); err != nil {
		s.logger.Warn("increment download count failed", "document_id", doc.ID, "error", err)
	}
	fx := &effects{}
	fx.log(actor, "download_pdf", "document", doc.ID, doc.ID, map[string]any{"fillable": fillable, "cached": result.Cached})
	s.apply(fx)
	return result, nil
}

// PreviewHTML is the printable page without the browser step.
func (s *Service) PreviewHTML(ctx context.Context, actor Actor, documentID string, fillable bool) (string, error) {
	doc, err := s.viewableDocument(ctx, actor, documentID)
	if err != nil {
		return "", err
	}
	if s.export == nil {
		return "", pdfUnavailableError(export.ErrPDFDependencyMissing)
	}
	records, err := s.store.ListFormFields(ctx, doc.ID)
	if err != nil {
		return "", fmt.Errorf("list form fields: %w", err)
	}
	html, err := s.export.RenderHTML(exportDocument(doc), fieldsFromRecords(records), fillable)
	if err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}
	return html, nil
}

// Search runs a full-text query under the same visibility as listings.
func (s *Service) Search(ctx context.Context, actor Actor, text string, page store.Page) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("Search query is required", map[string]any{"q": "required"})
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		Visibility: s.visibility(actor),
		Page:       page,
	}), nil
}
