package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inkwell/internal/api/middleware"
	"inkwell/internal/model"
	"inkwell/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func commentRouter(s *Server, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/comments", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	}, s.createComment)
	return r
}

func postComment(t *testing.T, r *gin.Engine, payload string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestCreateComment_RejectsEmptyContent(t *testing.T) {
	metrics.InitMetrics(1)
	s := &Server{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		posts:  &mockPostFinder{posts: map[uint]*model.Post{1: publishedPost(1, 9)}},
	}
	r := commentRouter(s, 5)

	if code := postComment(t, r, `{"post_id":1,"content":""}`); code != http.StatusBadRequest {
		t.Fatalf("empty content: expected 400, got %d", code)
	}
	if code := postComment(t, r, `{"post_id":1,"content":"   "}`); code != http.StatusBadRequest {
		t.Fatalf("blank content: expected 400, got %d", code)
	}
}

func TestCreateComment_MissingPost(t *testing.T) {
	metrics.InitMetrics(1)
	s := &Server{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		posts:  &mockPostFinder{posts: map[uint]*model.Post{}},
	}
	r := commentRouter(s, 5)

	if code := postComment(t, r, `{"post_id":99,"content":"hello"}`); code != http.StatusNotFound {
		t.Fatalf("missing post: expected 404, got %d", code)
	}
}

func TestCreateComment_DraftHiddenFromOthers(t *testing.T) {
	metrics.InitMetrics(1)
	draft := &model.Post{ID: 2, AuthorID: 9, IsDraft: true}
	s := &Server{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		posts:  &mockPostFinder{posts: map[uint]*model.Post{2: draft}},
	}
	r := commentRouter(s, 5)

	if code := postComment(t, r, `{"post_id":2,"content":"hello"}`); code != http.StatusNotFound {
		t.Fatalf("draft for non-author: expected 404, got %d", code)
	}
}
