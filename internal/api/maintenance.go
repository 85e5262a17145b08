package api

import (
	"context"
	"time"

	"inkwell/internal/model"

	"gorm.io/gorm"
)

// gormMaintenanceStore 为维护调度器提供清理操作。
type gormMaintenanceStore struct {
	db *gorm.DB
}

// ClearExpiredOTPs 清掉已过期的验证码字段，用户记录保留（可重发验证码）。
func (s *gormMaintenanceStore) ClearExpiredOTPs(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("otp_expires_at IS NOT NULL AND otp_expires_at < ?", time.Now()).
		Updates(map[string]interface{}{
			"otp_code":       "",
			"otp_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

// DeleteOrphanTags 删除不再被任何文章引用的标签。
func (s *gormMaintenanceStore) DeleteOrphanTags(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("id NOT IN (?)", s.db.Model(&model.PostTag{}).Select("tag_id")).
		Delete(&model.Tag{})
	return res.RowsAffected, res.Error
}
