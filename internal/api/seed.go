package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"inkwell/internal/model"
	"inkwell/internal/post"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const seedAuthorEmail = "demo@inkwell.dev"

// SeedDemoData 写入演示作者与示例文章，幂等：作者已存在则跳过。
func (s *Server) SeedDemoData(ctx context.Context) error {
	var existing model.User
	err := s.db.WithContext(ctx).Where("email = ?", seedAuthorEmail).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("query seed author: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	author := model.User{
		Name:       "Demo Author",
		Email:      seedAuthorEmail,
		Password:   string(hash),
		Avatar:     "https://api.dicebear.com/7.x/avataaars/svg?seed=" + seedAuthorEmail,
		Bio:        "示例账号，用于本地联调。",
		IsVerified: true,
	}
	if err := s.db.WithContext(ctx).Create(&author).Error; err != nil {
		return fmt.Errorf("create seed author: %w", err)
	}

	samples := []struct {
		title   string
		content string
		tags    []string
		draft   bool
	}{
		{
			title:   "Getting Started with Inkwell",
			content: "<p>Welcome to Inkwell. This sample post walks through creating your first article, adding tags and publishing it for the world to read.</p>",
			tags:    []string{"guide", "inkwell"},
		},
		{
			title:   "Writing in Markdown and HTML",
			content: "<p>The editor accepts rich HTML content. Read time and excerpts are derived automatically from the body, so you can focus on writing.</p>",
			tags:    []string{"guide", "writing"},
		},
		{
			title:   "Work in Progress",
			content: "<p>This one is still a draft and only visible to its author.</p>",
			tags:    []string{"draft-notes"},
			draft:   true,
		},
	}

	for i, sample := range samples {
		tags, err := s.resolveTags(ctx, sample.tags)
		if err != nil {
			return fmt.Errorf("resolve seed tags: %w", err)
		}
		p := model.Post{
			AuthorID: author.ID,
			Title:    sample.title,
			Content:  sample.content,
			Excerpt:  post.Excerpt(sample.content, ""),
			ReadTime: post.ReadTime(sample.content),
			IsDraft:  sample.draft,
			Tags:     tags,
		}
		if !sample.draft {
			// 发布时间错开，保证公共流顺序稳定
			ts := time.Now().Add(-time.Duration(len(samples)-i) * time.Hour)
			p.PublishedAt = &ts
		}
		if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
			return fmt.Errorf("create seed post: %w", err)
		}
	}

	s.logger.Info("demo data seeded", slog.String("author", seedAuthorEmail))
	return nil
}
