package handler

import (
	"net/http"

	"github.com/mcoot/partyroom/internal/api/response"
	"github.com/mcoot/partyroom/internal/readiness"
)

// Health reports whether the process is serving. A process that has not
// finished starting answers 503 so load balancers hold traffic back.
func Health(role, node string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := response.Health{Status: "ok", Role: role, Node: node}
		if err := readiness.Check(r.Context()); err != nil {
			body.Status = "starting"
			response.JSON(w, http.StatusServiceUnavailable, body)
			return
		}
		response.JSON(w, http.StatusOK, body)
	}
}
