package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classhive/collab/internal/common"
)

type createPostReq struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Category string `json:"category"`
	Audience string `json:"audience"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req createPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	post, err := h.Forum.CreatePost(c.Request.Context(), uid, req.Title, req.Content, req.Category, req.Audience)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, post)
}

func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.Forum.List(c.Request.Context(), c.Query("category"), c.Query("q"))
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"posts": posts})
}

func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.Forum.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, post)
}

type createCommentReq struct {
	Content  string  `json:"content" binding:"required"`
	ParentID *string `json:"parent_id"`
}

func (h *Handler) CreateComment(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req createCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	comment, err := h.Forum.Comment(c.Request.Context(), c.Param("id"), uid, req.Content, req.ParentID)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, comment)
}

type postReactionReq struct {
	ReactionType string `json:"reaction_type" binding:"required"`
}

func (h *Handler) ReactToPost(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req postReactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Forum.React(c.Request.Context(), c.Param("id"), uid, req.ReactionType); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}

type pinReq struct {
	Pinned *bool `json:"pinned" binding:"required"`
}

func (h *Handler) PinPost(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req pinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Forum.SetPinned(c.Request.Context(), c.Param("id"), roleFromContext(c), *req.Pinned); err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, nil)
}
