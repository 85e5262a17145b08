package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
)

type createCommentRequest struct {
	PostID  uint   `json:"post_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// CommentResponse 评论响应。
type CommentResponse struct {
	ID        uint           `json:"id"`
	PostID    uint           `json:"post_id"`
	Content   string         `json:"content"`
	Author    AuthorResponse `json:"author"`
	CreatedAt time.Time      `json:"created_at"`
}

func buildCommentResponse(cm *model.Comment) CommentResponse {
	var author AuthorResponse
	_ = copier.Copy(&author, &cm.Author)
	return CommentResponse{
		ID:        cm.ID,
		PostID:    cm.PostID,
		Content:   cm.Content,
		Author:    author,
		CreatedAt: cm.CreatedAt,
	}
}

// createComment 新增评论。空白内容拒绝，草稿对非作者不可评论。
func (s *Server) createComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment cannot be empty"})
		return
	}

	p, err := s.posts.FindPost(c.Request.Context(), req.PostID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if !p.VisibleTo(getUserID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	cm := model.Comment{
		PostID:   p.ID,
		AuthorID: getUserID(c),
		Content:  content,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&cm).Error; err != nil {
		s.logger.Error("create comment failed", slog.Uint64("post_id", uint64(p.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create comment failed"})
		return
	}

	if metrics.CommentsCreatedTotal != nil {
		metrics.CommentsCreatedTotal.Inc()
	}

	if err := s.db.WithContext(c.Request.Context()).Preload("Author").First(&cm, cm.ID).Error; err != nil {
		s.logger.Error("reload comment failed", slog.Uint64("comment_id", uint64(cm.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load comment failed"})
		return
	}
	c.JSON(http.StatusCreated, buildCommentResponse(&cm))
}

// listComments 列出文章评论，按创建时间倒序。
func (s *Server) listComments(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}

	var p model.Post
	if err := s.db.WithContext(c.Request.Context()).First(&p, postID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if !p.VisibleTo(getUserID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	var comments []model.Comment
	if err := s.db.WithContext(c.Request.Context()).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at DESC").
		Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list comments failed"})
		return
	}

	out := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, buildCommentResponse(&comments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": out, "total": len(out)})
}

// deleteComment 删除评论（仅评论作者）。
func (s *Server) deleteComment(c *gin.Context) {
	commentID, ok := parseID(c)
	if !ok {
		return
	}

	var cm model.Comment
	if err := s.db.WithContext(c.Request.Context()).First(&cm, commentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	if cm.AuthorID != getUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the comment author"})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Delete(&model.Comment{}, commentID).Error; err != nil {
		s.logger.Error("delete comment failed", slog.Uint64("comment_id", uint64(commentID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete comment failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}
