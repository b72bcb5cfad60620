package app

import "net/http"

type registerRequest struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
	FirstName       string `json:"first_name" validate:"max=100"`
	LastName        string `json:"last_name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.Register(r.Context(), RegisterInput{
		Email:           body.Email,
		Password:        body.Password,
		PasswordConfirm: body.PasswordConfirm,
		FirstName:       body.FirstName,
		LastName:        body.LastName,
	}, requestActor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.Login(r.Context(), body.Email, body.Password, requestActor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), actorFrom(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (s *HTTPServer) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RefreshToken(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.Profile(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), actorFrom(r), ProfileInput{
		FirstName: body.FirstName,
		LastName:  body.LastName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body changePasswordRequest
	if err := s.bind(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := s.service.ChangePassword(r.Context(), actorFrom(r), body.CurrentPassword, body.NewPassword, body.PasswordConfirm)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}
