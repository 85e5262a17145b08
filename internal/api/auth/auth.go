package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/api/middleware"
	"inkwell/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MailDispatcher 负责把验证码邮件交给投递通道（进程内队列或 Redis 队列）。
type MailDispatcher interface {
	DispatchVerification(email string, code string) error
}

// Options 认证模块配置。
type Options struct {
	JWTSecret      string
	TokenTTL       time.Duration // JWT 有效期
	OTPTTL         time.Duration // 验证码有效期
	ResendCooldown time.Duration // 验证码重发冷却
	DevMode        bool          // 非生产环境：注册响应附带验证码明文
}

// Handler 提供注册、验证、登录与个人资料接口。
type Handler struct {
	db         *gorm.DB
	opts       Options
	jwtSecret  []byte
	dispatcher MailDispatcher
	logger     *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(db *gorm.DB, opts Options, dispatcher MailDispatcher, logger *slog.Logger) *Handler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = 60 * time.Second
	}
	return &Handler{
		db:         db,
		opts:       opts,
		jwtSecret:  []byte(opts.JWTSecret),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type loginRequest struct {
	// 表单编码，username 字段承载邮箱（OAuth2 password 流的惯例）
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type updateProfileRequest struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// UserResponse 用户档案响应。
type UserResponse struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Avatar     string    `json:"avatar,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewUserResponse 将用户实体转换为响应结构。
func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Avatar:     u.Avatar,
		Bio:        u.Bio,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

// Register 创建待验证用户并发出验证码。
//
// 邮箱已存在（无论是否完成验证）返回 409；未验证用户补发验证码走 ResendCode。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var existing model.User
	err := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: string(hash),
		Avatar:   fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", email),
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	code, err := h.issueCode(c, &user)
	if err != nil {
		_ = h.db.WithContext(c.Request.Context()).Delete(&user).Error
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("user registered", slog.String("email", email))
	c.JSON(http.StatusCreated, h.registerResponse(email, code))
}

// registerResponse 组装注册响应；验证码明文只在非生产环境返回。
func (h *Handler) registerResponse(email string, code string) gin.H {
	resp := gin.H{
		"message": "verification code sent",
		"email":   email,
	}
	if h.opts.DevMode {
		resp["otp_code"] = code
	}
	return resp
}

// Verify 校验验证码，成功后标记已验证并签发 JWT。
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	var user model.User
	if err := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already verified"})
		return
	}
	if user.OTPCode == "" || user.OTPCode != strings.TrimSpace(req.Code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	if user.OTPExpiresAt == nil || time.Now().After(*user.OTPExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "code expired"})
		return
	}

	user.IsVerified = true
	user.OTPCode = ""
	user.OTPExpiresAt = nil
	user.OTPLastSentAt = nil
	if err := h.db.WithContext(c.Request.Context()).Save(&user).Error; err != nil {
		h.logger.Error("verify failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify failed"})
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	h.logger.Info("email verified", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         NewUserResponse(&user),
	})
}

// Login 校验凭证并签发 JWT。请求体为表单编码，username 承载邮箱。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Username))

	var user model.User
	if err := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.IsVerified {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "email not verified"})
		return
	}

	token, err := h.issueToken(user.ID)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	h.logger.Info("user logged in", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// ResendCode 重新发送验证码（按配置冷却时间频控）。
func (h *Handler) ResendCode(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	var user model.User
	if err := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	if user.IsVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already verified"})
		return
	}

	if user.OTPLastSentAt != nil && time.Since(*user.OTPLastSentAt) < h.opts.ResendCooldown {
		remain := int(h.opts.ResendCooldown.Seconds() - time.Since(*user.OTPLastSentAt).Seconds())
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "retry_after": remain})
		return
	}

	code, err := h.issueCode(c, &user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("verification code resent", slog.String("email", email))
	c.JSON(http.StatusOK, h.registerResponse(email, code))
}

// Me 返回当前用户档案。
func (h *Handler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(user))
}

// UpdateProfile 更新当前用户的名称/简介/头像。邮箱注册后不可更改。
func (h *Handler) UpdateProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
			return
		}
		updates["name"] = name
		user.Name = name
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
		user.Bio = *req.Bio
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
		user.Avatar = *req.Avatar
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			h.logger.Error("update profile failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update profile failed"})
			return
		}
	}

	c.JSON(http.StatusOK, NewUserResponse(user))
}

// ChangePassword 更换密码。
//
// 当前密码错误 → 401；新密码与确认不一致或长度不足 8 → 400。
func (h *Handler) ChangePassword(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
		return
	}
	if msg, ok := ValidateNewPassword(req.NewPassword, req.ConfirmPassword); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", user.ID).Update("password", string(hash)).Error; err != nil {
		h.logger.Error("change password failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
		return
	}

	h.logger.Info("password changed", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// Logout 处理注销请求（JWT 无状态，客户端丢弃 token 即可）。
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// DeleteAccount 删除当前用户及其全部数据。
//
// 单事务级联：本人文章连同其下评论/点赞/收藏/标签关联一并删除，
// 再清掉本人散落在他人文章下的评论、点赞与收藏。
func (h *Handler) DeleteAccount(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var postIDs []uint
		if err := tx.Model(&model.Post{}).Where("author_id = ?", user.ID).Pluck("id", &postIDs).Error; err != nil {
			return err
		}
		if len(postIDs) > 0 {
			if err := tx.Where("post_id IN ?", postIDs).Delete(&model.Comment{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id IN ?", postIDs).Delete(&model.Like{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id IN ?", postIDs).Delete(&model.Bookmark{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id IN ?", postIDs).Delete(&model.PostTag{}).Error; err != nil {
				return err
			}
			if err := tx.Where("author_id = ?", user.ID).Delete(&model.Post{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("author_id = ?", user.ID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&model.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&model.Bookmark{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, user.ID).Error
	})
	if err != nil {
		h.logger.Error("delete account failed", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete account failed"})
		return
	}

	h.logger.Info("account deleted", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

// ValidateNewPassword 检查新密码强度与确认一致性。
func ValidateNewPassword(newPassword, confirm string) (string, bool) {
	if newPassword != confirm {
		return "passwords do not match", false
	}
	if len(newPassword) < 8 {
		return "password must be at least 8 characters", false
	}
	return "", true
}

// currentUser 从上下文取出 userID 并加载用户，失败时写出错误响应。
func (h *Handler) currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get(middleware.ContextUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return nil, false
	}
	userID, ok := v.(uint)
	if !ok || userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return nil, false
	}

	var user model.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	return &user, true
}

// issueCode 生成验证码、写入用户记录并交给投递通道。返回验证码明文。
func (h *Handler) issueCode(c *gin.Context, user *model.User) (string, error) {
	code, err := generateCode(6)
	if err != nil {
		return "", fmt.Errorf("generate code failed")
	}
	exp := time.Now().Add(h.opts.OTPTTL)
	now := time.Now()

	user.OTPCode = code
	user.OTPExpiresAt = &exp
	user.OTPLastSentAt = &now

	if err := h.db.WithContext(c.Request.Context()).Save(user).Error; err != nil {
		h.logger.Error("save verification code failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		return "", fmt.Errorf("save code failed")
	}

	if h.dispatcher != nil {
		if err := h.dispatcher.DispatchVerification(user.Email, code); err != nil {
			h.logger.Warn("dispatch verification email failed",
				slog.String("email", user.Email), slog.String("error", err.Error()))
			// 开发环境验证码在响应中可见，投递失败不阻塞注册
			if !h.opts.DevMode {
				return "", fmt.Errorf("send verification failed")
			}
		}
	}
	return code, nil
}

func (h *Handler) issueToken(userID uint) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.opts.TokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}

func generateCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid code length")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = '0' + (buf[i] % 10)
	}
	return string(buf), nil
}
