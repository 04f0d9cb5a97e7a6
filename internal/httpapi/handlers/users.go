package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/users"
)

type createUserReq struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name" binding:"required"`
	AvatarURL   string `json:"avatar_url"`
	Role        string `json:"role"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Role == "" {
		req.Role = users.RoleStudent
	}
	if !users.ValidRole(req.Role) {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid role")
		return
	}

	// The identity provider may supply its own opaque id; otherwise mint
	// one for the profile row.
	id := req.ID
	if id == "" {
		var err error
		if id, err = common.NewULID(); err != nil {
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
	}

	u := users.User{
		ID:          id,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Role:        req.Role,
	}
	if err := h.Users.Create(c.Request.Context(), &u); err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user (maybe id already exists)")
		return
	}
	common.OK(c, u)
}

func (h *Handler) GetUserByID(c *gin.Context) {
	u, err := h.Users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, u)
}
