package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classhive/collab/internal/common"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	limit := atoiDefault(c.Query("limit"), 50)
	notifs, err := h.Notifs.List(c.Request.Context(), uid, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"notifications": notifs})
}

func (h *Handler) UnreadNotificationCount(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	count, err := h.Notifs.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"unread": count})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Notifs.MarkRead(c.Request.Context(), c.Param("id"), uid); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}
