/*
Package handler provides the HTTP handlers and routing setup for the relay.

This file contains the conversation history handler, consumed outside the
real-time path but authorized by the same identity rule as the WebSocket
surface.
*/
package handler

import (
	"net/http"
	"time"

	"hubchat/internal/pkg/auth/jwt"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/logx"
	"hubchat/internal/pkg/resp"
)

// HandleGetMessages returns up to the 100 most recent messages of a
// conversation, ascending by time. Spoke users may only fetch their own
// conversation; hub users must supply the target spoke user's id via the
// userId query parameter (an empty list comes back when they don't).
func HandleGetMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := jwt.IdentityFromContext(r.Context())
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		targetUserID := r.URL.Query().Get("userId")

		var since *time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				logx.Warn("History request rejected: invalid since parameter", "since", raw)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			since = &parsed
		}

		messages, err := deps.Pipeline.History(r.Context(), caller, targetUserID, since)
		if err != nil {
			resp.RespondError(w, r, errs.From(err, errs.ErrStoreFailure))
			return
		}

		resp.RespondSuccess(w, r, messages)
	}
}
