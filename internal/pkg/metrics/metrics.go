package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus 指标集合。调用 InitMetrics 后方可使用。
var (
	HTTPRequestsTotal *prometheus.CounterVec // HTTP 请求计数（method/path/status）

	PostsCreatedTotal     prometheus.Counter // 创建文章数
	PostsDeletedTotal     prometheus.Counter // 删除文章数
	LikesToggledTotal     prometheus.Counter // 点赞切换次数
	BookmarksToggledTotal prometheus.Counter // 收藏切换次数
	CommentsCreatedTotal  prometheus.Counter // 创建评论数

	EmailSentTotal   prometheus.Counter // 邮件发送成功数
	EmailFailedTotal prometheus.Counter // 邮件发送失败数

	RateLimitRejectedTotal prometheus.Counter   // 限流拒绝次数
	RateLimitWaitDuration  prometheus.Histogram // 限流等待时长

	UploadDuplicateTotal prometheus.Counter // 上传内容去重命中次数

	MailQueueDepth prometheus.Gauge // Redis 邮件队列积压
	WorkerPoolSize prometheus.Gauge // worker 池大小
)

var initOnce sync.Once

// InitMetrics 注册所有 Prometheus 指标，重复调用只生效一次。
func InitMetrics(workers int) {
	initOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwell_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"})

		PostsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_posts_created_total",
			Help: "Total posts created.",
		})
		PostsDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_posts_deleted_total",
			Help: "Total posts deleted.",
		})
		LikesToggledTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_likes_toggled_total",
			Help: "Total like toggle operations.",
		})
		BookmarksToggledTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_bookmarks_toggled_total",
			Help: "Total bookmark toggle operations.",
		})
		CommentsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_comments_created_total",
			Help: "Total comments created.",
		})

		EmailSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_email_sent_total",
			Help: "Total emails sent successfully.",
		})
		EmailFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_email_failed_total",
			Help: "Total email delivery failures.",
		})

		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_ratelimit_rejected_total",
			Help: "Total requests rejected by the rate limiter.",
		})
		RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inkwell_ratelimit_wait_seconds",
			Help:    "Time spent waiting for rate limiter tokens.",
			Buckets: prometheus.DefBuckets,
		})

		UploadDuplicateTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inkwell_upload_duplicate_total",
			Help: "Uploads answered from the content-hash dedup cache.",
		})

		MailQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inkwell_mail_queue_depth",
			Help: "Pending messages in the redis mail queue.",
		})
		WorkerPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inkwell_worker_pool_size",
			Help: "Configured worker pool size.",
		})
		WorkerPoolSize.Set(float64(workers))

		prometheus.MustRegister(
			HTTPRequestsTotal,
			PostsCreatedTotal,
			PostsDeletedTotal,
			LikesToggledTotal,
			BookmarksToggledTotal,
			CommentsCreatedTotal,
			EmailSentTotal,
			EmailFailedTotal,
			RateLimitRejectedTotal,
			RateLimitWaitDuration,
			UploadDuplicateTotal,
			MailQueueDepth,
			WorkerPoolSize,
		)
	})
}
