package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/rewear/internal/auth"
)

// Authenticator resolves the token a browser passes in the query string.
// Browsers cannot set an Authorization header on a WebSocket handshake.
type Authenticator func(ctx context.Context, token string) (auth.AuthContext, error)

// HandleWebSocket returns an HTTP handler that authenticates the ?token=
// parameter, upgrades the connection, and runs it as a Hub client.
func HandleWebSocket(hub *Hub, authenticate Authenticator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, err := authenticate(r.Context(), r.URL.Query().Get("token"))
		if errors.Is(err, auth.ErrUnauthenticated) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			logger.Error("websocket authenticate", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		logger.Debug("websocket connected", "user_id", ac.UserID)
		client := NewClient(hub, conn, ac, logger)
		client.Run(r.Context())
	}
}
