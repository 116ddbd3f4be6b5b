package devserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/avelin/chatter/internal/security"
)

type contextKey string

const claimsKey contextKey = "claims"

// authenticate validates the Bearer token and stores the claims in context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			Detail(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			Detail(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := s.jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			Detail(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.Claims)
	return claims, ok
}
