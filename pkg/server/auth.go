package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// authMiddleware validates the Authorization header on API requests
// against the configured OIDC audience (e.g. Cloud Scheduler ID tokens).
// With no audience configured the API is open, which is only appropriate
// behind a trusted proxy or in local development.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if s.bypassAuth {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		token, err := s.oidcVerifier(ctx, parts[1])
		if err != nil {
			slog.WarnContext(ctx, "failed to validate id token", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}

		if s.updateEmail != "" {
			var claims struct {
				Email string `json:"email"`
			}
			if err := token.Claims(&claims); err != nil || claims.Email == "" {
				slog.WarnContext(ctx, "invalid email in id token", slog.Any("error", err))
				writeJSONError(w, "invalid token claims", http.StatusForbidden)
				return
			}
			if claims.Email != s.updateEmail {
				slog.WarnContext(ctx, "unauthorized email", slog.String("email", claims.Email))
				writeJSONError(w, "unauthorized email", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
