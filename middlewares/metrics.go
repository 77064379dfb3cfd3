package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricPrefix = "threepl"

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// InventoryPostingsTotal counts ledger calls by type and result (ok, rejected, error).
	InventoryPostingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "_inventory_postings_total",
			Help: "Inventory ledger postings by type and result",
		},
		[]string{"type", "result"},
	)

	InvoicesGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "_invoices_generated_total",
			Help: "Invoices generated",
		},
	)

	ProductImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "_product_import_rows_total",
			Help: "Product import rows by result",
		},
		[]string{"result"},
	)
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HttpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HttpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
