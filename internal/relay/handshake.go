package relay

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/quantumshield/relay/internal/auth"
)

// upgrader is shared across connections; CheckOrigin defers to the
// configured OriginGate.
func newUpgrader(originGate *auth.OriginGate) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originGate.CheckOrigin,
	}
}

// Handler returns the http.HandlerFunc for the authenticated
// bidirectional channel. The client supplies {token, user_id} as query
// parameters; the relay verifies the token's signature/expiry and that
// token.subject == user_id, and only then upgrades and joins the room.
func (s *Service) Handler(validator *auth.Validator, originGate *auth.OriginGate) http.HandlerFunc {
	upgrader := newUpgrader(originGate)

	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		userIDParam := r.URL.Query().Get("user_id")

		userID, err := strconv.ParseInt(userIDParam, 10, 64)
		if err != nil {
			http.Error(w, "authentication error", http.StatusUnauthorized)
			return
		}

		claims, err := validator.ValidateHandshake(token, userID)
		if err != nil {
			http.Error(w, "authentication error", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[Relay] websocket upgrade failed: %v", err)
			return
		}

		client := s.AddClient(userID, claims.Username, conn)
		go s.WritePump(client)
		s.ReadPump(client)
	}
}
