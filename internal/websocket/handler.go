package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleFeed upgrades the request and streams ledger changes to it until the
// client goes away. ?account=<id> limits the feed to one account.
// originPatterns lists the dashboard hosts allowed to connect cross-origin.
func HandleFeed(hub *Hub, logger *slog.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		account := r.URL.Query().Get("account")
		logger.Debug("feed client connected", "account", account)

		NewClient(hub, conn, account).Run(r.Context())
		conn.Close(ws.StatusNormalClosure, "")
	}
}
