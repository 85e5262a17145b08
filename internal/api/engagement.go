package api

import (
	"context"
	"net/http"

	"inkwell/internal/model"
	"inkwell/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// engagementStore 点赞/收藏的存取接口。
//
// Toggle 必须是原子的：并发重复触发同一 (post, user) 时最终仍只有
// 0 或 1 行，计数与行状态在同一事务里读取。
type engagementStore interface {
	ToggleLike(ctx context.Context, postID, userID uint) (liked bool, count int64, err error)
	LikeStatus(ctx context.Context, postID, userID uint) (liked bool, count int64, err error)
	ForceUnlike(ctx context.Context, postID, userID uint) (count int64, err error)
	ToggleBookmark(ctx context.Context, postID, userID uint) (marked bool, err error)
	BookmarkStatus(ctx context.Context, postID, userID uint) (marked bool, err error)
	ForceUnbookmark(ctx context.Context, postID, userID uint) error
}

// postFinder 按 ID 加载文章，找不到时返回错误。
type postFinder interface {
	FindPost(ctx context.Context, id uint) (*model.Post, error)
}

type gormPostFinder struct {
	db *gorm.DB
}

func (s *gormPostFinder) FindPost(ctx context.Context, id uint) (*model.Post, error) {
	var p model.Post
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

type gormEngagementStore struct {
	db *gorm.DB
}

func (s *gormEngagementStore) ToggleLike(ctx context.Context, postID, userID uint) (bool, int64, error) {
	var liked bool
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&model.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 行不存在则插入；唯一索引兜底并发下的重复插入
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.Like{PostID: postID, UserID: userID}).Error; err != nil {
				return err
			}
			liked = true
		}
		return tx.Model(&model.Like{}).Where("post_id = ?", postID).Count(&count).Error
	})
	return liked, count, err
}

func (s *gormEngagementStore) LikeStatus(ctx context.Context, postID, userID uint) (bool, int64, error) {
	var rows int64
	if err := s.db.WithContext(ctx).Model(&model.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).Count(&rows).Error; err != nil {
		return false, 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Like{}).
		Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return false, 0, err
	}
	return rows > 0, count, nil
}

// ForceUnlike 确保点赞行不存在（幂等删除），返回删除后的计数。
func (s *gormEngagementStore) ForceUnlike(ctx context.Context, postID, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ? AND user_id = ?", postID, userID).
			Delete(&model.Like{}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Like{}).Where("post_id = ?", postID).Count(&count).Error
	})
	return count, err
}

func (s *gormEngagementStore) ToggleBookmark(ctx context.Context, postID, userID uint) (bool, error) {
	var marked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&model.Bookmark{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.Bookmark{PostID: postID, UserID: userID}).Error; err != nil {
				return err
			}
			marked = true
		}
		return nil
	})
	return marked, err
}

func (s *gormEngagementStore) BookmarkStatus(ctx context.Context, postID, userID uint) (bool, error) {
	var rows int64
	if err := s.db.WithContext(ctx).Model(&model.Bookmark{}).
		Where("post_id = ? AND user_id = ?", postID, userID).Count(&rows).Error; err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ForceUnbookmark 确保收藏行不存在（幂等删除）。
func (s *gormEngagementStore) ForceUnbookmark(ctx context.Context, postID, userID uint) error {
	return s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&model.Bookmark{}).Error
}

// visiblePost 加载文章并做可见性判定，草稿对非作者返回 404。
func (s *Server) visiblePost(c *gin.Context) (*model.Post, bool) {
	postID, ok := parseID(c)
	if !ok {
		return nil, false
	}
	p, err := s.posts.FindPost(c.Request.Context(), postID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return nil, false
	}
	if !p.VisibleTo(getUserID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return nil, false
	}
	return p, true
}

// toggleLike 点赞/取消点赞，返回切换后的状态与计数。
func (s *Server) toggleLike(c *gin.Context) {
	p, ok := s.visiblePost(c)
	if !ok {
		return
	}
	liked, count, err := s.engagement.ToggleLike(c.Request.Context(), p.ID, getUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle like failed"})
		return
	}
	if metrics.LikesToggledTotal != nil {
		metrics.LikesToggledTotal.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"is_liked": liked, "likes_count": count})
}

// likeStatus 查询当前用户对文章的点赞状态与总数。
func (s *Server) likeStatus(c *gin.Context) {
	p, ok := s.visiblePost(c)
	if !ok {
		return
	}
	liked, count, err := s.engagement.LikeStatus(c.Request.Context(), p.ID, getUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query like failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_liked": liked, "likes_count": count})
}

// forceUnlike 幂等取消点赞：无论之前是否点过，结束状态都是未点赞。
func (s *Server) forceUnlike(c *gin.Context) {
	p, ok := s.visiblePost(c)
	if !ok {
		return
	}
	count, err := s.engagement.ForceUnlike(c.Request.Context(), p.ID, getUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unlike failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_liked": false, "likes_count": count})
}

// toggleBookmark 收藏/取消收藏。收藏对用户私有，不暴露总数。
func (s *Server) toggleBookmark(c *gin.Context) {
	p, ok := s.visiblePost(c)
	if !ok {
		return
	}
	marked, err := s.engagement.ToggleBookmark(c.Request.Context(), p.ID, getUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toggle bookmark failed"})
		return
	}
	if metrics.BookmarksToggledTotal != nil {
		metrics.BookmarksToggledTotal.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"is_bookmarked": marked})
}

// bookmarkStatus 查询当前用户对文章的收藏状态。
func (s *Server) bookmarkStatus(c *gin.Context) {
	p, ok := s.visiblePost(c)
	if !ok {
		return
	}
	marked, err := s.engagement.BookmarkStatus(c.Request.Context(), p.ID, getUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query bookmark failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_bookmarked": marked})
}

// forceUnbookmark 幂等取消收藏。
func (s *Server) forceUnbookmark(c *gin.Context) {
	p, ok := s.visiblePost(c)
	if !ok {
		return
	}
	if err := s.engagement.ForceUnbookmark(c.Request.Context(), p.ID, getUserID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unbookmark failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_bookmarked": false})
}
