package model

import "time"

// User 表示博客用户。
type User struct {
	ID            uint       `gorm:"primaryKey"`                    // 用户 ID
	Name          string     `gorm:"type:varchar(100);not null"`    // 显示名称
	Email         string     `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一）
	Password      string     `gorm:"not null"`                      // bcrypt 哈希
	Avatar        string     `gorm:"type:varchar(500)"`             // 头像 URL
	Bio           string     `gorm:"type:text"`                     // 个人简介
	IsVerified    bool       `gorm:"default:false"`                 // 邮箱是否已验证
	OTPCode       string     `gorm:"type:varchar(6)"`               // 注册验证码
	OTPExpiresAt  *time.Time // 验证码过期时间
	OTPLastSentAt *time.Time // 验证码发送时间（重发频控）
	CreatedAt     time.Time  // 创建时间
	UpdatedAt     time.Time  // 更新时间

	Posts []Post `gorm:"foreignKey:AuthorID"`
}
