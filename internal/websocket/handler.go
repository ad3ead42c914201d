package websocket

import (
	"context"
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/dupipcom/morpheus-sub002/internal/apperr"
	"github.com/dupipcom/morpheus-sub002/internal/auth"
	"github.com/dupipcom/morpheus-sub002/internal/authz"
	"github.com/dupipcom/morpheus-sub002/internal/model"
)

// PermissionResolver is satisfied by *authz.Resolver.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID, listID string) (*model.List, authz.Permissions, error)
}

// HandleWebSocket upgrades /ws?list=<id> for callers that may read the list
// and streams that list's change notifications. The caller must already be
// identified by middleware.Identity. An empty originPatterns allows only
// same-origin browsers.
func HandleWebSocket(hub *Hub, perms PermissionResolver, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listID := r.URL.Query().Get("list")
		if listID == "" {
			http.Error(w, "list is required", http.StatusBadRequest)
			return
		}
		userID := auth.UserID(r.Context())

		_, p, err := perms.Resolve(r.Context(), userID, listID)
		if err != nil {
			status := apperr.HTTPStatus(err)
			if status == http.StatusInternalServerError {
				hub.logger.Error("resolve permissions", "list_id", listID, "user_id", userID, "error", err)
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		if !p.CanRead {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			hub.logger.Warn("accept websocket", "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, listID, userID).Run(r.Context())
	}
}
