// Bearer token authentication for mutating endpoints.

package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pagewright/pagewright/internal/server/dto"
	"github.com/pagewright/pagewright/internal/server/handlers"
)

// RequireBearer rejects requests without the expected bearer token.
// An empty expected token disables the check (local development).
func RequireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				handlers.WriteError(w, r, dto.Unauthenticated("missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
