package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinford/knowledge-rag/internal/core/ingestion"
	"github.com/jinford/knowledge-rag/internal/core/search"
)

// DefaultNamespace はメトリクス名の接頭辞
const DefaultNamespace = "knowledge_rag"

// Manager は Prometheus メトリクスを保持する
// ingestion.Recorder と search.Recorder を実装する
type Manager struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	documentsIngested *prometheus.CounterVec
	ingestionDuration prometheus.Histogram
	searchesTotal     prometheus.Counter
	searchResults     prometheus.Histogram

	registry *prometheus.Registry
}

var (
	_ ingestion.Recorder = (*Manager)(nil)
	_ search.Recorder    = (*Manager)(nil)
)

// NewManager は新しい Manager を作成する
func NewManager(namespace string) *Manager {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Manager{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.documentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Number of ingested documents by final status",
		},
		[]string{"status"},
	)

	m.ingestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Time from upload to final document status",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	m.searchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Number of completed similarity searches",
		},
	)

	m.searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.documentsIngested,
		m.ingestionDuration,
		m.searchesTotal,
		m.searchResults,
	)

	// Go ランタイムとプロセスのメトリクス
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry はテスト用にレジストリを返す
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIngestion は取り込み結果を記録する
func (m *Manager) ObserveIngestion(status ingestion.DocumentStatus, duration time.Duration) {
	m.documentsIngested.WithLabelValues(string(status)).Inc()
	m.ingestionDuration.Observe(duration.Seconds())
}

// ObserveSearch は検索結果の件数を記録する
func (m *Manager) ObserveSearch(resultCount int) {
	m.searchesTotal.Inc()
	m.searchResults.Observe(float64(resultCount))
}

// Middleware は HTTP リクエストのメトリクスを記録する
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		m.requestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			statusClass(c.Writer.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler は /metrics のハンドラ
func (m *Manager) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return gin.WrapH(h)
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
