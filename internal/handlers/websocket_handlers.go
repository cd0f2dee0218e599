package handlers

import (
	"net/http"
)

// HandleWebSocket hands the upgrade to the realtime gateway. Connections
// identify themselves afterwards with joinRoom.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Realtime.ServeHTTP(w, r)
	}
}
