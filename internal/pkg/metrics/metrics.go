package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由与状态码统计的请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_http_requests_total",
		Help: "HTTP requests handled, by route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "todolist_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// CascadeDeletesTotal 级联删除次数（board / category，success / failure）。
	CascadeDeletesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_cascade_deletes_total",
		Help: "Cascading soft deletes, by kind and result.",
	}, []string{"kind", "result"})

	// PermissionDeniedTotal 被策略拒绝的操作。
	PermissionDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_permission_denied_total",
		Help: "Operations denied by the authorization policy.",
	}, []string{"operation"})

	// BotUpdatesTotal 机器人处理的 update 数（handled / duplicate / panic / error / unverified）。
	BotUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_bot_updates_total",
		Help: "Inbound chat updates processed by the bot.",
	}, []string{"result"})

	// BotMessagesSentTotal 发送消息结果。
	BotMessagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_bot_messages_sent_total",
		Help: "Outbound chat messages, by result.",
	}, []string{"result"})

	// BotSessionTransitionsTotal 会话状态迁移。
	BotSessionTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_bot_session_transitions_total",
		Help: "Conversation state transitions.",
	}, []string{"from", "to"})

	// BotPollFailuresTotal 拉取 update 失败次数。
	BotPollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todolist_bot_poll_failures_total",
		Help: "Failed update fetches.",
	})

	// BotOffset 当前游标。
	BotOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "todolist_bot_offset",
		Help: "Next update id the poller will request.",
	})

	// OutboxDepth 异步发送队列长度。
	OutboxDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "todolist_outbox_depth",
		Help: "Outbound messages waiting in the outbox.",
	})

	// RateLimitWaitDuration 限流等待耗时。
	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "todolist_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a send token.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// RemindersTotal 到期提醒（chat / email / dropped / skipped）。
	RemindersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_reminders_total",
		Help: "Due-date reminders, by result.",
	}, []string{"result"})

	// DeliveryEventsTotal 投递流事件（published / sent / requeued / dead_lettered / claimed）。
	DeliveryEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todolist_delivery_events_total",
		Help: "Delivery stream events, by kind.",
	}, []string{"event"})

	// RateLimitTimeoutTotal 限流等待超时次数。
	RateLimitTimeoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todolist_ratelimit_timeout_total",
		Help: "Send token waits abandoned because the context ended.",
	})
)

var once sync.Once

// InitMetrics 将所有指标注册到默认 Registry，可重复调用。
func InitMetrics() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			CascadeDeletesTotal,
			PermissionDeniedTotal,
			BotUpdatesTotal,
			BotMessagesSentTotal,
			BotSessionTransitionsTotal,
			BotPollFailuresTotal,
			BotOffset,
			OutboxDepth,
			RateLimitWaitDuration,
			RateLimitTimeoutTotal,
			RemindersTotal,
			DeliveryEventsTotal,
		)
	})
}
