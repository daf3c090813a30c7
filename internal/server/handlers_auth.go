package server

import (
	"net/http"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "Too many signup attempts") {
		s.audit(r, "auth.register", "rate_limited")
		return
	}
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		s.audit(r, "auth.register", "fail", "reason", "invalid_request")
		return
	}
	user, err := s.app.Register(r.Context(), req.Email, req.Password, r.Header.Get(adminHeader))
	if err != nil {
		s.audit(r, "auth.register", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", user.ID, "role", user.Role)
	respond(w, http.StatusCreated, "User registered successfully", user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts") {
		s.audit(r, "auth.login", "rate_limited")
		return
	}
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		s.audit(r, "auth.login", "fail", "reason", "invalid_request")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	respond(w, http.StatusOK, "Login successful", loginResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	respond(w, http.StatusOK, "User fetched successfully", user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	token, _ := sessionToken(r)
	if err := s.app.Logout(token); err != nil {
		s.audit(r, "auth.logout", "fail", "user_id", user.ID, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success", "user_id", user.ID)
	s.clearSessionCookie(w)
	respond(w, http.StatusOK, "Logged out successfully", nil)
}

func (s *Server) handleGenerateAPIKey(w http.ResponseWriter, r *http.Request, user domain.User) {
	key, err := s.app.GenerateAPIKey(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "apikey.generate", "success", "user_id", user.ID)
	respond(w, http.StatusCreated, "API key generated successfully", map[string]string{"apiKey": key.Key})
}

func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request, user domain.User) {
	key, err := s.app.GetAPIKey(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "API key fetched successfully", apiKeyResponse{
		Key:       key.Key,
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
	})
}
