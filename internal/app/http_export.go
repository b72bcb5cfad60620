package app

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) routeExport(r chi.Router) {
	r.Get("/pdf/generate/{documentID}", s.handleGeneratePDF)
	r.Get("/pdf/preview/{documentID}", s.handlePreviewPDF)
	r.Get("/search", s.handleSearch)
}

func (s *HTTPServer) handleGeneratePDF(w http.ResponseWriter, r *http.Request) {
	fillable := boolParam(r, "fillable")
	result, err := s.service.GeneratePDF(r.Context(), actorFrom(r), chi.URLParam(r, "documentID"), fillable != nil && *fillable)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-PDF-Cache", strconv.FormatBool(result.Cached))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handlePreviewPDF(w http.ResponseWriter, r *http.Request) {
	fillable := boolParam(r, "fillable")
	html, err := s.service.PreviewHTML(r.Context(), actorFrom(r), chi.URLParam(r, "documentID"), fillable != nil && *fillable)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	page := pageParams(r)
	resp, err := s.service.Search(r.Context(), actorFrom(r), r.URL.Query().Get("q"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    resp.Results,
		"query":   resp.Query,
		"pagination": pagination{
			Page:  page.Number,
			Limit: page.Limit,
			Total: resp.Total,
			Pages: (resp.Total + page.Limit - 1) / page.Limit,
		},
	})
}
