package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/pkg/metrics"
	"inkwell/internal/post"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type createPostRequest struct {
	Title          string   `json:"title" binding:"required"`
	Content        string   `json:"content" binding:"required"`
	CoverImage     string   `json:"cover_image"`
	IsDraft        *bool    `json:"is_draft"` // 缺省立即发布
	Tags           []string `json:"tags"`
	SEOTitle       string   `json:"seo_title"`
	SEODescription string   `json:"seo_description"`
}

type updatePostRequest struct {
	Title          *string   `json:"title"`
	Content        *string   `json:"content"`
	CoverImage     *string   `json:"cover_image"`
	IsDraft        *bool     `json:"is_draft"`
	Tags           *[]string `json:"tags"`
	SEOTitle       *string   `json:"seo_title"`
	SEODescription *string   `json:"seo_description"`
}

// AuthorResponse 文章/评论里内嵌的作者信息。
type AuthorResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// PostResponse 文章响应。
type PostResponse struct {
	ID             uint           `json:"id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Excerpt        string         `json:"excerpt"`
	CoverImage     string         `json:"cover_image,omitempty"`
	ReadTime       int            `json:"read_time"`
	IsDraft        bool           `json:"is_draft"`
	PublishedAt    *time.Time     `json:"published_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	SEOTitle       string         `json:"seo_title,omitempty"`
	SEODescription string         `json:"seo_description,omitempty"`
	Author         AuthorResponse `json:"author"`
	Tags           []string       `json:"tags"`
	LikesCount     int64          `json:"likes_count"`
	CommentsCount  int64          `json:"comments_count"`
}

// postListResponse 分页响应信封。
type postListResponse struct {
	Posts      []PostResponse `json:"posts"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// buildPostResponse 组装文章响应（需已 Preload Author 与 Tags）。
func (s *Server) buildPostResponse(ctx context.Context, p *model.Post) PostResponse {
	var author AuthorResponse
	_ = copier.Copy(&author, &p.Author)

	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}

	var likes, comments int64
	_ = s.db.WithContext(ctx).Model(&model.Like{}).Where("post_id = ?", p.ID).Count(&likes).Error
	_ = s.db.WithContext(ctx).Model(&model.Comment{}).Where("post_id = ?", p.ID).Count(&comments).Error

	return PostResponse{
		ID:             p.ID,
		Title:          p.Title,
		Content:        p.Content,
		Excerpt:        p.Excerpt,
		CoverImage:     p.CoverImage,
		ReadTime:       p.ReadTime,
		IsDraft:        p.IsDraft,
		PublishedAt:    p.PublishedAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		SEOTitle:       p.SEOTitle,
		SEODescription: p.SEODescription,
		Author:         author,
		Tags:           tags,
		LikesCount:     likes,
		CommentsCount:  comments,
	}
}

func (s *Server) buildPostList(ctx context.Context, posts []model.Post, total int64, page, pageSize int) postListResponse {
	out := make([]PostResponse, 0, len(posts))
	for i := range posts {
		out = append(out, s.buildPostResponse(ctx, &posts[i]))
	}
	return postListResponse{
		Posts:      out,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}
}

// totalPages 计算总页数（向上取整）。
func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// resolveTags 按名称查找或创建标签。名称统一小写并去除首尾空白，去重。
func (s *Server) resolveTags(ctx context.Context, names []string) ([]model.Tag, error) {
	out := make([]model.Tag, 0, len(names))
	seen := map[string]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var tag model.Tag
		err := s.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tag = model.Tag{Name: name}
			if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tag).Error; err != nil {
				return nil, err
			}
			if tag.ID == 0 {
				// 与并发创建撞上，重查一次
				if err := s.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error; err != nil {
					return nil, err
				}
			}
		} else if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

// createPost 创建文章。阅读时长与摘要由正文派生；非草稿立即写入发布时间。
func (s *Server) createPost(c *gin.Context) {
	userID := getUserID(c)

	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isDraft := false
	if req.IsDraft != nil {
		isDraft = *req.IsDraft
	}

	p := model.Post{
		AuthorID:       userID,
		Title:          strings.TrimSpace(req.Title),
		Content:        req.Content,
		CoverImage:     req.CoverImage,
		SEOTitle:       req.SEOTitle,
		SEODescription: req.SEODescription,
		IsDraft:        isDraft,
		ReadTime:       post.ReadTime(req.Content),
		Excerpt:        post.Excerpt(req.Content, req.SEODescription),
	}
	p.PublishedAt = post.PublishTime(nil, true, isDraft, time.Now())

	tags, err := s.resolveTags(c.Request.Context(), req.Tags)
	if err != nil {
		s.logger.Error("resolve tags failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve tags failed"})
		return
	}
	p.Tags = tags

	if err := s.db.WithContext(c.Request.Context()).Create(&p).Error; err != nil {
		s.logger.Error("create post failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create post failed"})
		return
	}

	if metrics.PostsCreatedTotal != nil {
		metrics.PostsCreatedTotal.Inc()
	}

	if err := s.db.WithContext(c.Request.Context()).Preload("Author").Preload("Tags").First(&p, p.ID).Error; err != nil {
		s.logger.Error("reload post failed", slog.Uint64("post_id", uint64(p.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load post failed"})
		return
	}
	c.JSON(http.StatusCreated, s.buildPostResponse(c.Request.Context(), &p))
}

// updatePost 更新文章（仅作者）。
//
// 正文或 SEO 描述变化时重算摘要与阅读时长；首次草稿转发布写入发布时间，
// 此后再转回草稿或再次发布都不会改写它。
func (s *Server) updatePost(c *gin.Context) {
	userID := getUserID(c)
	postID, ok := parseID(c)
	if !ok {
		return
	}

	var p model.Post
	if err := s.db.WithContext(c.Request.Context()).Preload("Tags").First(&p, postID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if p.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the author"})
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deriveDirty := false
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
			return
		}
		p.Title = title
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content cannot be empty"})
			return
		}
		p.Content = *req.Content
		deriveDirty = true
	}
	if req.CoverImage != nil {
		p.CoverImage = *req.CoverImage
	}
	if req.SEOTitle != nil {
		p.SEOTitle = *req.SEOTitle
	}
	if req.SEODescription != nil {
		p.SEODescription = *req.SEODescription
		deriveDirty = true
	}
	if req.IsDraft != nil {
		p.PublishedAt = post.PublishTime(p.PublishedAt, p.IsDraft, *req.IsDraft, time.Now())
		p.IsDraft = *req.IsDraft
	}

	if deriveDirty {
		p.ReadTime = post.ReadTime(p.Content)
		p.Excerpt = post.Excerpt(p.Content, p.SEODescription)
	}

	if err := s.db.WithContext(c.Request.Context()).Save(&p).Error; err != nil {
		s.logger.Error("update post failed", slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update post failed"})
		return
	}

	if req.Tags != nil {
		tags, err := s.resolveTags(c.Request.Context(), *req.Tags)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve tags failed"})
			return
		}
		if err := s.db.WithContext(c.Request.Context()).Model(&p).Association("Tags").Replace(tags); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update tags failed"})
			return
		}
	}

	if err := s.db.WithContext(c.Request.Context()).Preload("Author").Preload("Tags").First(&p, p.ID).Error; err != nil {
		s.logger.Error("reload post failed", slog.Uint64("post_id", uint64(p.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load post failed"})
		return
	}
	c.JSON(http.StatusOK, s.buildPostResponse(c.Request.Context(), &p))
}

// postMutator 封装文章删除的级联语义，接口化便于在测试中替换。
type postMutator interface {
	DeletePostCascade(ctx context.Context, postID uint) error
}

type gormPostMutator struct {
	db *gorm.DB
}

// DeletePostCascade 在单事务里删除文章及其评论、点赞、收藏与标签关联，
// 不留孤儿行。
func (s *gormPostMutator) DeletePostCascade(ctx context.Context, postID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&model.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&model.Bookmark{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&model.PostTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Post{}, postID).Error
	})
}

// deletePost 删除文章及其评论、点赞、收藏与标签关联（仅作者）。
func (s *Server) deletePost(c *gin.Context) {
	userID := getUserID(c)
	postID, ok := parseID(c)
	if !ok {
		return
	}

	p, err := s.posts.FindPost(c.Request.Context(), postID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	if p.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the author"})
		return
	}

	if err := s.postMut.DeletePostCascade(c.Request.Context(), postID); err != nil {
		s.logger.Error("delete post failed", slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete post failed"})
		return
	}

	if metrics.PostsDeletedTotal != nil {
		metrics.PostsDeletedTotal.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

// getPost 获取文章详情。
//
// 草稿只有作者可见，其他人（包括匿名）一律 404。
func (s *Server) getPost(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}

	var p model.Post
	if err := s.db.WithContext(c.Request.Context()).
		Preload("Author").Preload("Tags").First(&p, postID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	if !p.VisibleTo(getUserID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}

	c.JSON(http.StatusOK, s.buildPostResponse(c.Request.Context(), &p))
}

// listPosts 公共文章流：仅已发布，按发布时间倒序。
//
// 支持 tag / author_id / search 过滤与分页。
func (s *Server) listPosts(c *gin.Context) {
	page, pageSize := s.pagination(c)
	ctx := c.Request.Context()

	query := s.db.WithContext(ctx).Model(&model.Post{}).
		Where("is_draft = ? AND published_at IS NOT NULL", false)

	if tag := strings.ToLower(strings.TrimSpace(c.Query("tag"))); tag != "" {
		query = query.
			Joins("JOIN post_tags ON post_tags.post_id = posts.id").
			Joins("JOIN tags ON tags.id = post_tags.tag_id").
			Where("tags.name = ?", tag)
	}
	if authorID := c.Query("author_id"); authorID != "" {
		if id, err := strconv.ParseUint(authorID, 10, 64); err == nil {
			query = query.Where("author_id = ?", uint(id))
		}
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("title LIKE ? OR excerpt LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count posts failed"})
		return
	}

	var posts []model.Post
	if err := query.
		Preload("Author").Preload("Tags").
		Order("published_at DESC, created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list posts failed"})
		return
	}

	c.JSON(http.StatusOK, s.buildPostList(ctx, posts, total, page, pageSize))
}

// listMyPosts 当前用户的全部文章（含草稿），按创建时间倒序。
func (s *Server) listMyPosts(c *gin.Context) {
	userID := getUserID(c)
	page, pageSize := s.pagination(c)
	ctx := c.Request.Context()

	query := s.db.WithContext(ctx).Model(&model.Post{}).Where("author_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count posts failed"})
		return
	}

	var posts []model.Post
	if err := query.
		Preload("Author").Preload("Tags").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list posts failed"})
		return
	}

	c.JSON(http.StatusOK, s.buildPostList(ctx, posts, total, page, pageSize))
}

type tagResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	PostCount int64  `json:"post_count"`
}

// listTags 列出全部标签与关联文章数，按引用数倒序。
func (s *Server) listTags(c *gin.Context) {
	var tags []tagResponse
	err := s.db.WithContext(c.Request.Context()).Model(&model.Tag{}).
		Select("tags.id, tags.name, COUNT(post_tags.post_id) AS post_count").
		Joins("LEFT JOIN post_tags ON post_tags.tag_id = tags.id").
		Group("tags.id, tags.name").
		Order("post_count DESC, tags.name ASC").
		Scan(&tags).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tags failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// pagination 解析分页参数并套用默认值与上限。
func (s *Server) pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(s.cfg.App.DefaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = s.cfg.App.DefaultPageSize
	}
	if pageSize > s.cfg.App.MaxPageSize {
		pageSize = s.cfg.App.MaxPageSize
	}
	return page, pageSize
}

// parseID 解析路径参数 :id，非法时写出 400。
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
