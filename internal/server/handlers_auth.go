package server

import (
	"net/http"
	"strconv"
)

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Error any       `json:"error"`
	Data  LoginData `json:"data"`
}

// LoginData carries the issued token.
type LoginData struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// login handles POST /login.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.fields(w, r)
	if !ok {
		return
	}

	tok, err := s.auth.Login(fields.get("username"))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": msgAuthFailed})
		return
	}

	ttl := int64(tok.ExpiresAt.Sub(tok.IssuedAt).Seconds())
	w.Header().Set("auth-token", tok.Value)
	w.Header().Set("X-Token-Expires-In", strconv.FormatInt(ttl, 10))
	writeJSON(w, http.StatusOK, LoginResponse{
		Data: LoginData{Token: tok.Value, ExpiresIn: ttl},
	})
}
