package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/httpapi/handlers"
	"github.com/classhive/collab/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// CRUD users register
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUserByID)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))

	// direct conversations (JWT required)
	authGroup.POST("/conversations", h.StartConversation)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.POST("/conversations/:id/messages", h.SendMessage)
	authGroup.GET("/conversations/:id/messages", h.ListMessages)
	authGroup.POST("/conversations/:id/read", h.MarkConversationRead)
	authGroup.DELETE("/messages/:id", h.DeleteMessage)
	authGroup.POST("/messages/:id/reactions", h.ToggleMessageReaction)

	// forum
	authGroup.POST("/forum/posts", h.CreatePost)
	authGroup.GET("/forum/posts", h.ListPosts)
	authGroup.GET("/forum/posts/:id", h.GetPost)
	authGroup.POST("/forum/posts/:id/comments", h.CreateComment)
	authGroup.POST("/forum/posts/:id/reactions", h.ReactToPost)
	authGroup.POST("/forum/posts/:id/pin", h.PinPost)

	// presence
	authGroup.POST("/presence/heartbeat", h.Heartbeat)
	authGroup.GET("/presence", h.QueryPresence)

	// notifications
	authGroup.GET("/notifications", h.ListNotifications)
	authGroup.GET("/notifications/unread-count", h.UnreadNotificationCount)
	authGroup.POST("/notifications/:id/read", h.MarkNotificationRead)

	// live change feed
	authGroup.GET("/stream", h.Stream)

	return r
}
