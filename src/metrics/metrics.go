// Package metrics 数据加载、缓存与 HTTP 接口的 Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 状态对应的数值, 便于告警规则
var statusValue = map[string]float64{
	"online":   0,
	"offline":  1,
	"critical": 2,
}

// Option 配置项
type Option func(*Manager)

// WithNamespace 指标命名空间, 为空时保持默认
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithRegistry 使用指定的注册表
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithHistogramBuckets 自定义加载耗时直方图分桶(秒), 为空时保持默认
func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// Manager 管理全部指标
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	rows         prometheus.Gauge
	status       prometheus.Gauge
	lastLoad     prometheus.Gauge
	mailSyncs    *prometheus.CounterVec
	alerts       *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager 创建指标管理器, 默认使用独立注册表并附带 Go 运行时指标
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "skm",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.loads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "dataset",
		Name:      "loads_total",
		Help:      "Dataset loads by resulting status",
	}, []string{"status"})

	m.loadDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "dataset",
		Name:      "load_duration_seconds",
		Help:      "Time spent fetching and normalizing the dataset",
		Buckets:   m.buckets,
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Dataset cache hits",
	})

	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Dataset cache misses",
	})

	m.rows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "dataset",
		Name:      "rows",
		Help:      "Respondent rows in the current dataset",
	})

	m.status = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "dataset",
		Name:      "status",
		Help:      "Current source status: 0 online, 1 offline, 2 critical",
	})

	m.lastLoad = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "dataset",
		Name:      "last_load_timestamp_seconds",
		Help:      "Unix time of the last dataset load",
	})

	m.mailSyncs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "mailbox",
		Name:      "syncs_total",
		Help:      "Mailbox sync runs by result",
	}, []string{"result"})

	m.alerts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "alert",
		Name:      "status_changes_total",
		Help:      "Source status changes by new status",
	}, []string{"status"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// ObserveLoad 记录一次加载
func (m *Manager) ObserveLoad(status string, rows int, d time.Duration) {
	m.loads.WithLabelValues(status).Inc()
	m.loadDuration.Observe(d.Seconds())
	m.rows.Set(float64(rows))
	if v, ok := statusValue[status]; ok {
		m.status.Set(v)
	}
	m.lastLoad.SetToCurrentTime()
}

// CacheHit 缓存命中
func (m *Manager) CacheHit() { m.cacheHits.Inc() }

// CacheMiss 缓存未命中
func (m *Manager) CacheMiss() { m.cacheMisses.Inc() }

// MailSync 记录邮箱同步结果: saved / empty / error
func (m *Manager) MailSync(result string) { m.mailSyncs.WithLabelValues(result).Inc() }

// StatusChange 记录状态变化
func (m *Manager) StatusChange(status string) { m.alerts.WithLabelValues(status).Inc() }

// ObserveHTTP 记录一次 HTTP 请求
func (m *Manager) ObserveHTTP(route, method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry 底层注册表
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler /metrics 处理器
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
