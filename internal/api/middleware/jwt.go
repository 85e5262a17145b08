package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserID 是写入 gin 上下文的用户 ID 键名。
const ContextUserID = "userID"

// AuthMiddleware 校验 Bearer JWT 并将 userID 写入上下文。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		userID, ok := parseBearer(c, secret)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// OptionalAuthMiddleware 解析 Bearer JWT（如果携带），缺失或无效时继续匿名处理。
//
// 用于文章详情这类"作者可见草稿、路人按未登录处理"的端点。
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		if userID, ok := parseBearer(c, secret); ok {
			c.Set(ContextUserID, userID)
		}
		c.Next()
	}
}

func parseBearer(c *gin.Context, secret []byte) (uint, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return 0, false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return 0, false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}
	if claims.Subject == "" {
		return 0, false
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return 0, false
	}
	return uint(uid), true
}
