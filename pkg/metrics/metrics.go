package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 分类模型调用延迟（毫秒）
	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_latency_ms",
			Help:    "Classifier provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"operation", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	// 邮件入库结果计数
	EmailIngestedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_ingested_total",
			Help: "Total number of emails seen by the ingestion pipeline",
		},
		[]string{"outcome"}, // processed, skipped, failed
	)

	// 策略规则命中计数
	PolicyOverrideCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_override_total",
			Help: "Number of times a priority rule changed the classifier verdict",
		},
		[]string{"rule"},
	)

	// 推送结果计数
	NotificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_attempt_total",
			Help: "Notification attempts by category and result reason",
		},
		[]string{"category", "reason"},
	)

	// 定时任务耗时（秒）
	SchedulerTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Duration of one scheduler tick in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"job"},
	)

	// 定时任务处理条数
	SchedulerItemCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_items_total",
			Help: "Items handled by scheduler ticks",
		},
		[]string{"job", "result"},
	)

	// 决策状态变化计数
	DecisionTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_transition_total",
			Help: "Decision lifecycle transitions",
		},
		[]string{"to"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordClassifierCall 记录模型调用延迟
func RecordClassifierCall(operation, status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(operation, status).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// IncrementEmailIngested 增加入库结果计数
func IncrementEmailIngested(outcome string) {
	EmailIngestedCount.WithLabelValues(outcome).Inc()
}

// IncrementPolicyOverride 增加规则命中计数
func IncrementPolicyOverride(rule string) {
	PolicyOverrideCount.WithLabelValues(rule).Inc()
}

// IncrementNotification 增加推送结果计数
func IncrementNotification(category, reason string) {
	NotificationCount.WithLabelValues(category, reason).Inc()
}

// RecordSchedulerTick 记录定时任务耗时
func RecordSchedulerTick(job string, duration time.Duration) {
	SchedulerTickDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncrementSchedulerItem 增加定时任务处理计数
func IncrementSchedulerItem(job, result string) {
	SchedulerItemCount.WithLabelValues(job, result).Inc()
}

// IncrementDecisionTransition 增加决策状态变化计数
func IncrementDecisionTransition(to string) {
	DecisionTransitionCount.WithLabelValues(to).Inc()
}
