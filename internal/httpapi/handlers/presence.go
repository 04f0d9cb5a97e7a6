package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/presence"
)

type heartbeatReq struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
}

func (h *Handler) Heartbeat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req heartbeatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Presence.Heartbeat(uid, presence.Status(req.Status), req.StatusMessage, time.Now()); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) QueryPresence(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	raw := c.Query("user_ids")
	if raw == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "user_ids is required")
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	common.OK(c, gin.H{"presence": h.Presence.Query(ids)})
}
