package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"communitydms/api/internal/store"
)

type approvalRequestBody struct {
	DocumentID string     `json:"document_id" validate:"required"`
	Priority   string     `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Notes      string     `json:"notes" validate:"max=2000"`
	DueDate    *time.Time `json:"due_date"`
}

type reviewRequestBody struct {
	Status      string `json:"status" validate:"required,oneof=approved rejected changes_requested"`
	ReviewNotes string `json:"review_notes" validate:"max=2000"`
}

func (s *HTTPServer) routeApprovals(r chi.Router) {
	r.Route("/approvals", func(r chi.Router) {
		r.Get("/", s.handleListApprovals)
		r.Post("/", s.handleRequestApproval)
		r.Get("/stats", s.handleApprovalStats)
		r.Get("/document/{documentID}", s.handleDocumentApprovals)
		r.Get("/{id}", s.handleGetApproval)
		r.Put("/{id}", s.handleReviewApproval)
		r.Delete("/{id}", s.handleCancelApproval)
	})
}

func (s *HTTPServer) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pageParams(r)
	items, total, err := s.service.ListApprovals(r.Context(), actorFrom(r), ApprovalQuery{
		Status:     q.Get("status"),
		DocumentID: q.Get("document"),
		Page:       page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, page, total)
}

func (s *HTTPServer) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	var body approvalRequestBody
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	request, err := s.service.RequestApproval(r.Context(), actorFrom(r), ApprovalInput{
		DocumentID: body.DocumentID,
		Priority:   body.Priority,
		Notes:      body.Notes,
		DueDate:    body.DueDate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, request)
}

func (s *HTTPServer) handleApprovalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.ApprovalStats(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleDocumentApprovals(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ApprovalsForDocument(r.Context(), actorFrom(r), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

func (s *HTTPServer) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	request, err := s.service.GetApproval(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, request)
}

func (s *HTTPServer) handleReviewApproval(w http.ResponseWriter, r *http.Request) {
	var body reviewRequestBody
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	request, err := s.service.ReviewApproval(r.Context(), actorFrom(r), chi.URLParam(r, "id"), ReviewInput{
		Status: store.ApprovalStatus(body.Status),
		Notes:  body.ReviewNotes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, request)
}

func (s *HTTPServer) handleCancelApproval(w http.ResponseWriter, r *http.Request) {
	request, err := s.service.CancelApproval(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, request)
}
