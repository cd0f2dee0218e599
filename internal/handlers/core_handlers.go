package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"connect-you/internal/utils"
)

const maxBodyBytes = 64 * 1024

// HandleHealth reports whether the datastore answers.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			s.Logger.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":      "unavailable",
				"server_time": time.Now(),
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"server_time": time.Now(),
		})
	}
}

// withTimeout bounds a service call by the server's request timeout.
func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.RequestTimeout)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps err onto the HTTP taxonomy. Storage failures never leak
// their text; it has already been logged by the service.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"message": utils.ClientMessage(err)}
	status := http.StatusInternalServerError
	if appErr, ok := utils.AsAppError(err); ok {
		status = utils.AppErrorToHTTPStatus(appErr.Code)
		body["error"] = appErr.Code
	} else {
		s.Logger.Error().Err(err).Msg("unclassified handler error")
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return utils.NewInvalidInputError("Request body is required")
	}
	return utils.NewInvalidInputError("Invalid request body")
}
