package server

import (
	"relay-chat/internal/handler"
	"relay-chat/internal/middleware"
	"relay-chat/internal/services"
	"relay-chat/internal/websocket"
	"relay-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Auth          *services.AuthService
	Conversations *handler.ConversationHandler
	Messages      *handler.MessageHandler
	Socket        *websocket.Handler
	Log           *logger.Logger
}

// NewRouter builds the gin engine: socket endpoint plus the request/response
// surface for membership and message management.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(deps.Log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/ws", deps.Socket.Connect)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(deps.Auth))
	{
		api.GET("/chats", deps.Conversations.List)
		api.POST("/chats/direct", deps.Conversations.CreateDirect)
		api.PUT("/chats/:id/read", deps.Conversations.MarkRead)
		api.DELETE("/chats/:id", deps.Conversations.Hide)

		api.POST("/groups", deps.Conversations.CreateGroup)
		api.POST("/groups/:id/members", deps.Conversations.AddMembers)
		api.POST("/groups/:id/leave", deps.Conversations.Leave)
		api.POST("/groups/:id/kick", deps.Conversations.Kick)
		api.PUT("/groups/:id/members/:userId/role", deps.Conversations.UpdateRole)
		api.PUT("/groups/:id/avatar", deps.Conversations.SetAvatar)
		api.DELETE("/groups/:id", deps.Conversations.DeleteGroup)

		api.PUT("/messages/:id", deps.Messages.Edit)
		api.DELETE("/messages/:id", deps.Messages.Delete)
		api.POST("/conversations/:id/summary/repair", deps.Messages.RepairSummary)
	}

	return r
}
