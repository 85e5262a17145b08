package post

import (
	"testing"
	"time"
)

func TestPublishTime_FirstPublishSetsIt(t *testing.T) {
	now := time.Now()

	// 新建即发布
	if got := PublishTime(nil, true, false, now); got == nil || !got.Equal(now) {
		t.Fatalf("expected publish time %v, got %v", now, got)
	}

	// 草稿保持草稿不写入
	if got := PublishTime(nil, true, true, now); got != nil {
		t.Fatalf("draft must not get a publish time, got %v", got)
	}
}

func TestPublishTime_NeverChangesOnceSet(t *testing.T) {
	first := time.Now().Add(-24 * time.Hour)
	later := time.Now()

	// 已发布文章再次编辑/保存
	if got := PublishTime(&first, false, false, later); got == nil || !got.Equal(first) {
		t.Fatalf("editing a published post must keep %v, got %v", first, got)
	}

	// 发布 → 撤回草稿
	if got := PublishTime(&first, false, true, later); got == nil || !got.Equal(first) {
		t.Fatalf("unpublishing must keep %v, got %v", first, got)
	}

	// 撤回后再次发布，仍保留首次发布时间
	if got := PublishTime(&first, true, false, later); got == nil || !got.Equal(first) {
		t.Fatalf("republishing must keep %v, got %v", first, got)
	}
}
