/*
Package handler provides the HTTP handlers and routing setup for the relay.

This file contains the HandleWebSocket function: rate limiting, identity
verification, the HTTP-to-WebSocket upgrade, and admission of the connection
into the messaging core.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"hubchat/internal/app/chat"
	"hubchat/internal/metrics"
	"hubchat/internal/pkg/auth/jwt"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/limiter"
	"hubchat/internal/pkg/logx"
	"hubchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
//
// Verification runs synchronously before admission: no traffic is processed
// until the token checks out, and failure terminates the attempt immediately
// with no retry inside the core.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			metrics.ConnectionsRefused.WithLabelValues("rate_limited").Inc()
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		// Token absent or invalid: refuse before the upgrade, so the attempt
		// costs no connection state.
		id, err := deps.Verifier.Verify(jwt.BearerToken(r))
		if err != nil {
			logx.Warn("WebSocket connection rejected: Unauthorized.", "ip", ip)
			metrics.ConnectionsRefused.WithLabelValues("unauthorized").Inc()
			resp.RespondError(w, r, errs.From(err, errs.ErrUnauthorized))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			metrics.ConnectionsRefused.WithLabelValues("upgrade_failed").Inc()
			return
		}

		client := chat.NewClient(deps.Manager, deps.Pipeline, conn, id)

		go client.WritePump()

		deps.Manager.Register(client)
		metrics.ConnectionsAdmitted.WithLabelValues(string(id.Role)).Inc()

		logx.Info("WebSocket connection established and client admitted",
			"client_id", id.SubjectID, "role", string(id.Role))

		client.ReadPump()
	}
}
