package gateway

import (
	"chat-engine/auth"
	"chat-engine/runtime"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Handler upgrades authenticated HTTP requests to websocket sessions and
// hands them to the engine. Authentication happens here, at the handshake:
// the engine itself only ever sees identities the token layer vouched for.
type Handler struct {
	engine     *runtime.Orchestrator
	tokens     *auth.TokenManager
	upgrader   websocket.Upgrader
	bufferSize int
	log        *slog.Logger

	// baseCtx outlives individual requests so engine work triggered by a
	// connection is cancelled at shutdown, not when the handshake returns.
	baseCtx context.Context
}

func NewHandler(baseCtx context.Context, engine *runtime.Orchestrator, tokens *auth.TokenManager,
	allowedOrigins []string, bufferSize int, log *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		bufferSize: bufferSize,
		log:        log,
		baseCtx:    baseCtx,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.ValidateToken(bearerToken(r))
	if err != nil {
		h.log.Warn("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.engine, claims.IdentityID, h.bufferSize, h.log)
	h.log.Info("Connection established",
		"connection", string(client.ID()), "identity", claims.IdentityID, "remote", r.RemoteAddr)

	go client.writePump()
	client.readPump(h.baseCtx)
}

// bearerToken pulls the JWT from the Authorization header or, for browser
// websocket clients that cannot set headers, the token query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// originChecker allows every origin when no allowlist is configured (local
// development), otherwise enforces an exact match.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return lo.Contains(allowed, r.Header.Get("Origin"))
	}
}
