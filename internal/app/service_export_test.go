package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitydms/api/internal/export"
	"communitydms/api/internal/forms"
	"communitydms/api/internal/markdown"
)

type stubPrinter struct {
	html string
	err  error
}

func (p *stubPrinter) Print(_ context.Context, html string) ([]byte, error) {
	p.html = html
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-1.4 stub"), nil
}

func withPrinter(f *fixture, printer export.Printer) {
	f.svc.export = export.NewService(markdown.NewRenderer(), printer)
}

func TestGeneratePDFCountsDownloads(t *testing.T) {
	f := newFixture(t)
	printer := &stubPrinter{}
	withPrinter(f, printer)
	ctx := context.Background()

	doc, err := f.svc.CreateDocument(ctx, f.alice, CreateDocumentInput{
		Title:           "Clubhouse Rental",
		CategoryID:      f.general,
		ContentMarkdown: "Renter: {{field:renter}}",
		FormFields:      []forms.Spec{{Name: "renter", Type: "text", Required: true}},
	})
	require.NoError(t, err)

	result, err := f.svc.GeneratePDF(ctx, f.alice, doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Contains(t, result.Filename, "clubhouse-rental")
	assert.Contains(t, printer.html, `name="renter"`)

	stored, err := f.mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.DownloadCount)

	found := false
	for _, e := range f.mem.Activity() {
		if e.Action == "download_pdf" && e.EntityID == doc.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGeneratePDFErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, f.alice, "Plain", "No fields here.", false)

	_, err := f.svc.GeneratePDF(ctx, f.alice, doc.ID, false)
	requireStatus(t, err, http.StatusServiceUnavailable)

	withPrinter(f, &stubPrinter{})
	_, err = f.svc.GeneratePDF(ctx, f.alice, doc.ID, true)
	requireStatus(t, err, http.StatusBadRequest)

	withPrinter(f, &stubPrinter{err: errors.New("chrome crashed")})
	_, err = f.svc.GeneratePDF(ctx, f.alice, doc.ID, false)
	requireStatus(t, err, http.StatusServiceUnavailable)

	_, err = f.svc.GeneratePDF(ctx, f.bob, doc.ID, false)
	requireStatus(t, err, http.StatusForbidden)

	stored, err := f.mem.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.DownloadCount)
}

func TestPreviewHTML(t *testing.T) {
	f := newFixture(t)
	withPrinter(f, nil)
	doc := f.create(t, f.alice, "Preview Me", "# Heading", false)

	html, err := f.svc.PreviewHTML(context.Background(), f.alice, doc.ID, false)
	require.NoError(t, err)
	assert.Contains(t, html, "Preview Me")
	assert.Contains(t, html, "Heading")
}
