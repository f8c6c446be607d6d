package middleware

import (
	"net/http"

	"github.com/mcoot/partyroom/internal/readiness"
)

// Readiness attaches the process readiness state to every request context,
// where the controllers check it
func Readiness(state *readiness.State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(readiness.WithState(r.Context(), state)))
		})
	}
}
