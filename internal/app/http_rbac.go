package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// =============================================================================
// User Management HTTP Handlers
// =============================================================================

type createUserRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"omitempty,oneof=admin president board_member committee_member volunteer public"`
}

type updateUserRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Role      *string `json:"role" validate:"omitempty,oneof=admin president board_member committee_member volunteer public"`
	Active    *bool   `json:"active"`
}

func (s *HTTPServer) routeRBAC(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
		r.Get("/stats", s.handleUserStats)
		r.Get("/{id}", s.handleGetUser)
		r.Put("/{id}", s.handleUpdateUser)
		r.Delete("/{id}", s.handleDeactivateUser)
	})
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", s.handleListNotifications)
		r.Put("/read-all", s.handleMarkAllNotificationsRead)
		r.Put("/{id}/read", s.handleMarkNotificationRead)
	})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pageParams(r)
	users, total, err := s.service.ListUsers(r.Context(), actorFrom(r), UserQuery{
		Role:   q.Get("role"),
		Active: boolParam(r, "active"),
		Search: q.Get("search"),
		Page:   page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, users, page, total)
}

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.CreateUser(r.Context(), actorFrom(r), CreateUserInput{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Role:      body.Role,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.UserStats(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var body updateUserRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.UpdateUser(r.Context(), actorFrom(r), chi.URLParam(r, "id"), UserUpdate{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Role:      body.Role,
		Active:    body.Active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *HTTPServer) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeactivateUser(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User deactivated successfully")
}

// =============================================================================
// Notification HTTP Handlers
// =============================================================================

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	page := pageParams(r)
	unread := boolParam(r, "unread")
	items, total, err := s.service.ListNotifications(r.Context(), actorFrom(r), unread != nil && *unread, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, page, total)
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkNotificationRead(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Notification marked as read")
}

func (s *HTTPServer) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.MarkAllNotificationsRead(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"updated": n})
}

// =============================================================================
// Activity Log HTTP Handlers
// =============================================================================

func (s *HTTPServer) handleListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pageParams(r)
	items, total, err := s.service.ListActivity(r.Context(), actorFrom(r), ActivityQuery{
		UserID:     q.Get("user_id"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		Page:       page,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, page, total)
}
