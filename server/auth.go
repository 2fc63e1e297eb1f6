package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// credentials is the login request body, named the way the teacher's
// userCredentials struct is.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// loginHandler issues an HMAC-signed bearer token for a known admin
// user. The teacher generates a fresh RSA keypair per process and
// signs with RS256; fabrikd simplifies to a single shared HS256 secret
// from config, since there is no per-user ACL store to authenticate
// against here, only the one operator credential pair.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-001", Message: "malformed login request"})
		return
	}
	if creds.Username != s.adminUser || creds.Password != s.adminPasswd {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "ERR-API-002", Message: "invalid credentials"})
		return
	}

	claims := jwt.MapClaims{
		"sub": creds.Username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(12 * time.Hour).Unix(),
	}
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok, err := signed.SignedString([]byte(s.jwtSecret))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "ERR-API-003", Message: "could not sign token"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

// validateTokenMiddleware is a negroni.HandlerFunc validating the
// Authorization: Bearer <token> header before passing control to next,
// mirroring the teacher's validateTokenMiddleware control flow.
func (s *Server) validateTokenMiddleware(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "missing bearer token")
		return
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "token is not valid")
		return
	}
	next(w, r)
}
