package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"inkwell/internal/api/middleware"
	"inkwell/internal/config"
	"inkwell/internal/model"
	"inkwell/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func newPagingServer(defaultSize, maxSize int) *Server {
	cfg := &config.Config{}
	cfg.App.DefaultPageSize = defaultSize
	cfg.App.MaxPageSize = maxSize
	return &Server{cfg: cfg}
}

func pagingContext(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/posts?"+rawQuery, nil)
	return c
}

func TestPagination_Defaults(t *testing.T) {
	s := newPagingServer(12, 100)

	page, pageSize := s.pagination(pagingContext(t, ""))
	if page != 1 || pageSize != 12 {
		t.Fatalf("expected (1, 12), got (%d, %d)", page, pageSize)
	}
}

func TestPagination_ClampsToMax(t *testing.T) {
	s := newPagingServer(12, 100)

	_, pageSize := s.pagination(pagingContext(t, "page_size=500"))
	if pageSize != 100 {
		t.Fatalf("expected page_size clamped to 100, got %d", pageSize)
	}
}

func TestPagination_RejectsInvalid(t *testing.T) {
	s := newPagingServer(12, 100)

	page, pageSize := s.pagination(pagingContext(t, "page=-3&page_size=abc"))
	if page != 1 || pageSize != 12 {
		t.Fatalf("invalid params must fall back to defaults, got (%d, %d)", page, pageSize)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{0, 12, 0},
		{1, 12, 1},
		{12, 12, 1},
		{13, 12, 2},
		{100, 10, 10},
		{101, 10, 11},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := totalPages(tc.total, tc.pageSize); got != tc.want {
			t.Errorf("totalPages(%d, %d) = %d, want %d", tc.total, tc.pageSize, got, tc.want)
		}
	}
}

// memPostMutator 用内存行模拟删除文章时的级联语义：
// 删除文章必须一并带走其评论、点赞、收藏与标签关联。
type memPostMutator struct {
	finder    *mockPostFinder
	comments  map[uint]int
	likes     map[uint]int
	bookmarks map[uint]int
	tagLinks  map[uint]int
}

func (m *memPostMutator) DeletePostCascade(ctx context.Context, postID uint) error {
	delete(m.comments, postID)
	delete(m.likes, postID)
	delete(m.bookmarks, postID)
	delete(m.tagLinks, postID)
	delete(m.finder.posts, postID)
	return nil
}

func (m *memPostMutator) orphanRows(postID uint) int {
	return m.comments[postID] + m.likes[postID] + m.bookmarks[postID] + m.tagLinks[postID]
}

func newDeleteServer(finder *mockPostFinder, mut *memPostMutator) *Server {
	metrics.InitMetrics(1)
	return &Server{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		posts:   finder,
		postMut: mut,
	}
}

func deletePostRouter(s *Server, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.DELETE("/api/posts/:id", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	}, s.deletePost)
	return r
}

func TestDeletePost_CascadeLeavesNoOrphans(t *testing.T) {
	finder := &mockPostFinder{posts: map[uint]*model.Post{
		1: publishedPost(1, 5),
		2: publishedPost(2, 9),
	}}
	mut := &memPostMutator{
		finder:    finder,
		comments:  map[uint]int{1: 3, 2: 1},
		likes:     map[uint]int{1: 2, 2: 4},
		bookmarks: map[uint]int{1: 1},
		tagLinks:  map[uint]int{1: 2, 2: 1},
	}
	s := newDeleteServer(finder, mut)
	r := deletePostRouter(s, 5)

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete own post: expected 200, got %d", w.Code)
	}

	if n := mut.orphanRows(1); n != 0 {
		t.Fatalf("deleted post left %d orphan rows", n)
	}
	if _, ok := finder.posts[1]; ok {
		t.Fatal("post row must be gone after delete")
	}
	// 其他文章的关联不受影响
	if mut.orphanRows(2) != 1+4+0+1 {
		t.Fatalf("unrelated post rows must stay intact, got %d", mut.orphanRows(2))
	}
}

func TestDeletePost_OnlyAuthor(t *testing.T) {
	finder := &mockPostFinder{posts: map[uint]*model.Post{2: publishedPost(2, 9)}}
	mut := &memPostMutator{finder: finder, comments: map[uint]int{2: 2}}
	s := newDeleteServer(finder, mut)
	r := deletePostRouter(s, 5)

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", w.Code)
	}
	if _, ok := finder.posts[2]; !ok || mut.comments[2] != 2 {
		t.Fatal("post and its rows must survive a forbidden delete")
	}
}

func TestDeletePost_Missing(t *testing.T) {
	finder := &mockPostFinder{posts: map[uint]*model.Post{}}
	s := newDeleteServer(finder, &memPostMutator{finder: finder})
	r := deletePostRouter(s, 5)

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing post, got %d", w.Code)
	}
}

func TestParseID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	if id, ok := parseID(c); !ok || id != 42 {
		t.Fatalf("expected (42, true), got (%d, %v)", id, ok)
	}

	for _, bad := range []string{"0", "-1", "abc", ""} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: bad}}
		if _, ok := parseID(c); ok {
			t.Fatalf("id %q must be rejected", bad)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("id %q: expected 400, got %d", bad, w.Code)
		}
	}
}
