package model

import (
	"time"
)

// Post 表示一篇博客文章。
//
// 文章只有 draft / published 两种状态：is_draft=true 时仅作者可见；
// 首次从草稿转为发布时写入 PublishedAt，之后的编辑不会重置它。
// Excerpt 和 ReadTime 由正文派生（见 internal/post）。
type Post struct {
	ID        uint      `gorm:"primaryKey"` // 文章唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	AuthorID uint   `gorm:"not null;index"`             // 作者 ID
	Author   User   `gorm:"foreignKey:AuthorID"`        // 作者
	Title    string `gorm:"type:varchar(255);not null"` // 标题
	Content  string `gorm:"type:longtext;not null"`     // HTML 正文

	Excerpt     string     `gorm:"type:text"`          // 摘要（派生或 SEO 描述）
	CoverImage  string     `gorm:"type:varchar(500)"`  // 封面图 URL
	ReadTime    int        `gorm:"default:0"`          // 预计阅读时间（分钟）
	IsDraft     bool       `gorm:"default:true;index"` // 是否草稿
	PublishedAt *time.Time // 首次发布时间（只写一次）

	SEOTitle       string `gorm:"type:varchar(255)"` // SEO 标题（缺省用 Title）
	SEODescription string `gorm:"type:text"`         // SEO 描述（缺省用 Excerpt）

	Tags []Tag `gorm:"many2many:post_tags"` // 关联标签
}

// VisibleTo 是统一的可见性判定：作者总是可见，其他人只能看到已发布的文章。
//
// 草稿对非作者表现为"不存在"（404），避免泄露文章 ID 的存在性。
func (p *Post) VisibleTo(viewerID uint) bool {
	if p.AuthorID == viewerID {
		return true
	}
	return !p.IsDraft && p.PublishedAt != nil
}

// Tag 表示文章标签。
//
// 标签按需创建、从不主动删除（孤儿标签允许存在，可通过维护任务清理）。
type Tag struct {
	ID   uint   `gorm:"primaryKey"`                            // 标签 ID
	Name string `gorm:"type:varchar(50);uniqueIndex;not null"` // 标签名（小写、去空格）

	Posts []Post `gorm:"many2many:post_tags"`
}

// PostTag 是文章与标签的关联表（多对多中间表，无额外属性）。
type PostTag struct {
	PostID uint `gorm:"primaryKey"` // 文章 ID
	TagID  uint `gorm:"primaryKey"` // 标签 ID
}

// Comment 表示文章评论。
//
// 评论创建后内容不可修改，只能被评论作者删除；展示按创建时间倒序。
type Comment struct {
	ID        uint      `gorm:"primaryKey"` // 评论 ID
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	PostID   uint   `gorm:"not null;index"`      // 所属文章 ID
	AuthorID uint   `gorm:"not null"`            // 评论作者 ID
	Author   User   `gorm:"foreignKey:AuthorID"` // 评论作者
	Content  string `gorm:"type:text;not null"`  // 评论内容
}

// Like 表示点赞关系，(post_id, user_id) 唯一，行存在即"已点赞"。
type Like struct {
	ID        uint      `gorm:"primaryKey"`                              // 点赞 ID
	PostID    uint      `gorm:"not null;uniqueIndex:uniq_post_user_like"` // 文章 ID
	UserID    uint      `gorm:"not null;uniqueIndex:uniq_post_user_like"` // 用户 ID
	CreatedAt time.Time // 点赞时间
}

// Bookmark 表示收藏关系，与 Like 同构但状态独立，收藏对用户私有。
type Bookmark struct {
	ID        uint      `gorm:"primaryKey"`                                  // 收藏 ID
	PostID    uint      `gorm:"not null;uniqueIndex:uniq_post_user_bookmark"` // 文章 ID
	UserID    uint      `gorm:"not null;uniqueIndex:uniq_post_user_bookmark"` // 用户 ID
	CreatedAt time.Time // 收藏时间
}
