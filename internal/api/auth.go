// Package api implements HTTP handlers and helpers for the wave batching service.
package api

import (
    "crypto/subtle"
    "net/http"
    "strings"
)

// isAdmin checks the bearer token against the configured admin token.
// Without a configured token only development servers grant admin access.
func (s *Server) isAdmin(r *http.Request) bool {
    if s.AdminToken == "" {
        return s.Dev
    }
    authz := r.Header.Get("Authorization")
    if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
        return false
    }
    tok := strings.TrimSpace(authz[len("Bearer "):])
    return subtle.ConstantTimeCompare([]byte(tok), []byte(s.AdminToken)) == 1
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
    if s.isAdmin(r) { return true }
    writeProblem(w, http.StatusForbidden, "Forbidden", "admin token required", r.URL.Path)
    return false
}
