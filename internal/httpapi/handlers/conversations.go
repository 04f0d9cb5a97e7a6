package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classhive/collab/internal/common"
)

type startConversationReq struct {
	OtherUserID string `json:"other_user_id" binding:"required"`
}

func (h *Handler) StartConversation(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req startConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conv, err := h.Chat.GetOrCreate(c.Request.Context(), uid, req.OtherUserID)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, conv)
}

func (h *Handler) ListConversations(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	views, err := h.Chat.ListForUser(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"conversations": views})
}

type sendMessageReq struct {
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.Chat.Send(c.Request.Context(), c.Param("id"), uid, req.Content, req.MessageType)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		limit = atoiDefault(v, 0)
	}
	msgs, err := h.Chat.ListMessages(c.Request.Context(), c.Param("id"), uid, limit, c.Query("after_id"))
	if err != nil {
		failErr(c, err)
		return
	}

	var nextAfterID string
	if len(msgs) > 0 {
		nextAfterID = msgs[len(msgs)-1].ID
	}
	common.OK(c, gin.H{
		"messages":      msgs,
		"next_after_id": nextAfterID,
	})
}

func (h *Handler) MarkConversationRead(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Chat.MarkRead(c.Request.Context(), c.Param("id"), uid); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Chat.SoftDelete(c.Request.Context(), c.Param("id"), uid); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}

type reactionReq struct {
	Reaction string `json:"reaction" binding:"required"`
}

func (h *Handler) ToggleMessageReaction(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req reactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Chat.ToggleReaction(c.Request.Context(), c.Param("id"), uid, req.Reaction); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}
