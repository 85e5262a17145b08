package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"inkwell/internal/pkg/dedup"
	"inkwell/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// allowedUploadExts 允许上传的图片扩展名。
var allowedUploadExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// uploadFile 上传图片。
//
// 扩展名白名单 + 大小上限校验；文件名用 UUID 重命名避免覆盖与路径注入。
// 相同内容（sha256）重复上传时直接复用已存文件的 URL。
func (s *Server) uploadFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file type %s not allowed", ext)})
		return
	}
	if fileHeader.Size > s.cfg.App.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "open upload failed"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, s.cfg.App.MaxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
		return
	}
	if int64(len(data)) > s.cfg.App.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	name := uuid.NewString() + ext
	url := "/static/uploads/" + name

	// SETNX 原子记录内容哈希→URL：首次记录走落盘，撞上已有记录直接复用
	sum := dedup.HashBytes(data)
	existing, dup, err := s.deduper.Remember(c.Request.Context(), sum, url)
	if err != nil {
		s.logger.Warn("upload dedup check failed", slog.String("error", err.Error()))
	}
	if dup && existing != "" {
		if metrics.UploadDuplicateTotal != nil {
			metrics.UploadDuplicateTotal.Inc()
		}
		c.JSON(http.StatusOK, gin.H{
			"url":      existing,
			"filename": filepath.Base(existing),
			"dedup":    true,
		})
		return
	}

	dst := filepath.Join(s.cfg.App.UploadDir, name)
	if err := os.MkdirAll(s.cfg.App.UploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save upload failed"})
		return
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		s.logger.Error("write upload failed", slog.String("path", dst), slog.String("error", err.Error()))
		// 落盘失败时撤销去重记录，避免后续请求拿到指向不存在文件的 URL
		_ = s.deduper.Forget(c.Request.Context(), sum)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save upload failed"})
		return
	}

	s.logger.Info("file uploaded",
		slog.Uint64("user_id", uint64(getUserID(c))),
		slog.String("filename", name),
		slog.Int("size", len(data)))
	c.JSON(http.StatusOK, gin.H{"url": url, "filename": name})
}
