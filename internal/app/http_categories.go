package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createCategoryRequest struct {
	Name                 string  `json:"name" validate:"required,max=100"`
	Description          string  `json:"description" validate:"max=1000"`
	ParentID             *string `json:"parent_id"`
	RequiredApprovalRole string  `json:"required_approval_role" validate:"omitempty,oneof=admin president board_member committee_member volunteer public"`
}

type updateCategoryRequest struct {
	Name                 *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description          *string `json:"description" validate:"omitempty,max=1000"`
	ParentID             *string `json:"parent_id"`
	RequiredApprovalRole *string `json:"required_approval_role" validate:"omitempty,oneof=admin president board_member committee_member volunteer public"`
}

func (s *HTTPServer) routeCategories(r chi.Router) {
	r.Route("/categories", func(r chi.Router) {
		r.Get("/", s.handleListCategories)
		r.Post("/", s.handleCreateCategory)
		r.Get("/tree", s.handleCategoryTree)
		r.Get("/stats", s.handleCategoryStats)
		r.Get("/{id}", s.handleGetCategory)
		r.Put("/{id}", s.handleUpdateCategory)
		r.Delete("/{id}", s.handleDeleteCategory)
	})
}

func (s *HTTPServer) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

func (s *HTTPServer) handleCategoryTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.service.CategoryTree(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tree)
}

func (s *HTTPServer) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.CategoryStats(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.service.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, category)
}

func (s *HTTPServer) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var body createCategoryRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	category, err := s.service.CreateCategory(r.Context(), actorFrom(r), CategoryInput{
		Name:                 body.Name,
		Description:          body.Description,
		ParentID:             body.ParentID,
		RequiredApprovalRole: body.RequiredApprovalRole,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, category)
}

func (s *HTTPServer) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var body updateCategoryRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	category, err := s.service.UpdateCategory(r.Context(), actorFrom(r), chi.URLParam(r, "id"), CategoryUpdate{
		Name:                 body.Name,
		Description:          body.Description,
		ParentID:             body.ParentID,
		RequiredApprovalRole: body.RequiredApprovalRole,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, category)
}

func (s *HTTPServer) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteCategory(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Category deleted successfully")
}
