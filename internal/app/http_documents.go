package app

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"communitydms/api/internal/forms"
)

type createDocumentRequest struct {
	Title             string       `json:"title" validate:"required,max=255"`
	CategoryID        string       `json:"category_id" validate:"required"`
	ContentMarkdown   string       `json:"content_markdown"`
	ChangeDescription string       `json:"change_description" validate:"max=500"`
	IsPublic          bool         `json:"is_public"`
	FormFields        []forms.Spec `json:"form_fields" validate:"omitempty,dive"`
}

type updateDocumentRequest struct {
	Title             *string       `json:"title" validate:"omitempty,max=255"`
	CategoryID        *string       `json:"category_id" validate:"omitempty,min=1"`
	ContentMarkdown   *string       `json:"content_markdown"`
	IsPublic          *bool         `json:"is_public"`
	FormFields        *[]forms.Spec `json:"form_fields" validate:"omitempty,dive"`
	ChangeDescription string        `json:"change_description" validate:"max=500"`
	IsMajor           bool          `json:"is_major"`
}

func (s *HTTPServer) routeDocuments(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)
		r.Get("/stats", s.handleDocumentStats)
		r.Get("/{id}", s.handleGetDocument)
		r.Put("/{id}", s.handleUpdateDocument)
		r.Delete("/{id}", s.handleArchiveDocument)
		r.Post("/{id}/publish", s.handlePublishDocument)
		r.Get("/{id}/versions", s.handleListVersions)
		r.Get("/{id}/activity", s.handleDocumentActivity)
	})
	r.Route("/versions", func(r chi.Router) {
		r.Get("/compare/{from}/{to}", s.handleCompareVersions)
		r.Get("/{id}", s.handleGetVersion)
		r.Post("/{id}/restore", s.handleRestoreVersion)
	})
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pageParams(r)
	docs, total, err := s.service.ListDocuments(r.Context(), actorFrom(r), DocumentQuery{
		Status:     q.Get("status"),
		CategoryID: q.Get("category"),
		AuthorID:   q.Get("author"),
		Search:     q.Get("search"),
		IsPublic:   boolParam(r, "is_public"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
		Page:       page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, docs, page, total)
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body createDocumentRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.service.CreateDocument(r.Context(), actorFrom(r), CreateDocumentInput{
		Title:             body.Title,
		CategoryID:        body.CategoryID,
		ContentMarkdown:   body.ContentMarkdown,
		ChangeDescription: body.ChangeDescription,
		IsPublic:          body.IsPublic,
		FormFields:        body.FormFields,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, doc)
}

func (s *HTTPServer) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.DocumentStats(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.GetDocument(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body updateDocumentRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.service.UpdateDocument(r.Context(), actorFrom(r), chi.URLParam(r, "id"), UpdateDocumentInput{
		Title:             body.Title,
		CategoryID:        body.CategoryID,
		ContentMarkdown:   body.ContentMarkdown,
		IsPublic:          body.IsPublic,
		FormFields:        body.FormFields,
		ChangeDescription: body.ChangeDescription,
		IsMajor:           body.IsMajor,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleArchiveDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ArchiveDocument(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Document archived successfully")
}

func (s *HTTPServer) handlePublishDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.PublishDocument(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.service.ListVersions(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, versions)
}

func (s *HTTPServer) handleDocumentActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.service.DocumentActivity(r.Context(), actorFrom(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.service.GetVersion(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, version)
}

func (s *HTTPServer) handleCompareVersions(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.service.CompareVersions(r.Context(), actorFrom(r), chi.URLParam(r, "from"), chi.URLParam(r, "to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, cmp)
}

func (s *HTTPServer) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.RestoreVersion(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, doc)
}
