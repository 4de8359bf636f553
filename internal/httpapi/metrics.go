package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration)
}

// statusRecorder captures the response status for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// idCollections names the path segments that are followed by an entity id.
var idCollections = map[string]bool{
	"shifts":    true,
	"sales":     true,
	"customers": true,
	"registers": true,
	"products":  true,
}

// literalActions are sub-paths of id collections that are routes, not ids.
var literalActions = map[string]bool{
	"open":    true,
	"close":   true,
	"current": true,
}

// metricPath replaces entity ids in the path with a placeholder so the
// metric label set stays bounded.
func metricPath(path string) string {
	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if idCollections[segments[i-1]] && segments[i] != "" && !literalActions[segments[i]] {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func observeRequest(method string, path string, status int, elapsed time.Duration) {
	labelPath := metricPath(path)
	httpRequestsTotal.WithLabelValues(method, labelPath, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(labelPath).Observe(elapsed.Seconds())
}
