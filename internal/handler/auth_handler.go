/*
Package handler provides the HTTP handlers and routing setup for the relay.

This file contains the development-only token endpoint. In production an
external auth service issues identity tokens; local clients and integration
harnesses use this endpoint to mint one against the shared development secret.
*/
package handler

import (
	"net/http"

	"hubchat/internal/app/identity"
	"hubchat/internal/pkg/auth/jwt"
	"hubchat/internal/pkg/errs"
	"hubchat/internal/pkg/logx"
	"hubchat/internal/pkg/req"
	"hubchat/internal/pkg/resp"
)

// DevTokenInput is the request body for the development token endpoint.
type DevTokenInput struct {
	SubjectID   string `json:"subjectId"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName,omitempty"`
}

// HandleDevToken mints an identity token for local development. The route is
// only mounted in the development environment.
func HandleDevToken(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input DevTokenInput

		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		role, err := identity.ParseRole(input.Role)
		if err != nil || input.SubjectID == "" {
			logx.Warn("Dev token request rejected", "subject_id", input.SubjectID, "role", input.Role)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		id := identity.Identity{
			SubjectID:   input.SubjectID,
			Role:        role,
			DisplayName: input.DisplayName,
		}

		tokenString, err := jwt.GenerateToken(id, deps.Config.JWTSecret, jwt.IdentityExpiration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": tokenString,
		})
	}
}
