package post

import "time"

// PublishTime 返回状态变更后的发布时间。
//
// 发布时间只在首次由草稿转为发布时写入，之后无论改回草稿还是再次发布
// 都保持首次的值不变。
func PublishTime(current *time.Time, wasDraft, isDraft bool, now time.Time) *time.Time {
	if wasDraft && !isDraft && current == nil {
		return &now
	}
	return current
}
