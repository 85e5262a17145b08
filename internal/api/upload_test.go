package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/config"
	"inkwell/internal/pkg/dedup"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func newUploadServer(t *testing.T, deduper *dedup.Deduplicator) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.UploadDir = t.TempDir()
	cfg.App.MaxUploadSize = 1 << 20
	return &Server{
		cfg:     cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		deduper: deduper,
	}
}

func uploadRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/upload", s.uploadFile)
	return r
}

func multipartFile(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func TestUpload_RejectsMissingFile(t *testing.T) {
	s := newUploadServer(t, nil)
	r := uploadRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpload_RejectsDisallowedExtension(t *testing.T) {
	s := newUploadServer(t, nil)
	r := uploadRouter(s)

	body, contentType := multipartFile(t, "evil.exe", []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	s := newUploadServer(t, nil)
	s.cfg.App.MaxUploadSize = 16
	r := uploadRouter(s)

	body, contentType := multipartFile(t, "big.png", bytes.Repeat([]byte{0xAB}, 64))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpload_SavesFileWithGeneratedName(t *testing.T) {
	s := newUploadServer(t, nil)
	r := uploadRouter(s)

	content := []byte("fake png bytes")
	body, contentType := multipartFile(t, "photo.PNG", content)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !strings.HasPrefix(resp.URL, "/static/uploads/") {
		t.Fatalf("unexpected url %q", resp.URL)
	}
	if !strings.HasSuffix(resp.Filename, ".png") {
		t.Fatalf("extension must be lowercased, got %q", resp.Filename)
	}
	if resp.Filename == "photo.png" {
		t.Fatal("filename must be regenerated, not the client-provided name")
	}

	saved, err := os.ReadFile(filepath.Join(s.cfg.App.UploadDir, resp.Filename))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(saved, content) {
		t.Fatal("saved content mismatch")
	}
}

func TestUpload_DeduplicatesByContentHash(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newUploadServer(t, dedup.NewDeduplicator(rdb, 0))
	r := uploadRouter(s)

	content := []byte("identical image bytes")
	upload := func() (int, map[string]interface{}) {
		body, contentType := multipartFile(t, "pic.jpg", content)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var resp map[string]interface{}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		return w.Code, resp
	}

	code, first := upload()
	if code != http.StatusOK {
		t.Fatalf("first upload: expected 200, got %d", code)
	}
	if _, ok := first["dedup"]; ok {
		t.Fatal("first upload must not be marked as duplicate")
	}

	code, second := upload()
	if code != http.StatusOK {
		t.Fatalf("second upload: expected 200, got %d", code)
	}
	if second["dedup"] != true {
		t.Fatal("second upload must be deduplicated")
	}
	if second["url"] != first["url"] {
		t.Fatalf("duplicate must reuse url: %v vs %v", second["url"], first["url"])
	}
}
