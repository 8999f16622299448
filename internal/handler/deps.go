package handler

import (
	"hubchat/internal/app/chat"
	"hubchat/internal/app/identity"
	"hubchat/internal/app/store"
	"hubchat/internal/configs"
)

// AppDeps bundles the long-lived dependencies the HTTP and WebSocket handlers share.
type AppDeps struct {
	Manager  *chat.Manager
	Pipeline *chat.Pipeline
	Store    store.ConversationStore
	Verifier identity.Verifier
	Config   *configs.AppConfig
}
