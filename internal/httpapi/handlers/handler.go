package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classhive/collab/internal/chat"
	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/config"
	"github.com/classhive/collab/internal/feed"
	"github.com/classhive/collab/internal/forum"
	"github.com/classhive/collab/internal/httpapi/middleware"
	"github.com/classhive/collab/internal/notifications"
	"github.com/classhive/collab/internal/presence"
	"github.com/classhive/collab/internal/users"
)

type Handler struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Users    *users.Repo
	Chat     *chat.Service
	Forum    *forum.Service
	Notifs   *notifications.Service
	Presence *presence.Registry
	Broker   *feed.Broker
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func roleFromContext(c *gin.Context) string {
	v, _ := c.Get(middleware.RoleKey)
	role, _ := v.(string)
	return role
}

// failErr maps a service error kind onto the response envelope.
func failErr(c *gin.Context, err error) {
	switch common.KindOf(err) {
	case common.KindValidation:
		common.Fail(c, http.StatusBadRequest, 10001, err.Error())
	case common.KindUnauthorized:
		common.Fail(c, http.StatusUnauthorized, 40101, err.Error())
	case common.KindForbidden:
		common.Fail(c, http.StatusForbidden, 40301, err.Error())
	case common.KindNotFound:
		common.Fail(c, http.StatusNotFound, 40400, err.Error())
	case common.KindConflict:
		common.Fail(c, http.StatusConflict, 40900, err.Error())
	case common.KindUnavailable:
		common.Fail(c, http.StatusServiceUnavailable, 50300, "temporarily unavailable, retry")
	default:
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
