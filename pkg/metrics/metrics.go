package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain counters and the HTTP histogram for the service.
type Metrics struct {
	OrdersPlaced        prometheus.Counter
	OrdersCancelled     prometheus.Counter
	OrdersDelivered     prometheus.Counter
	StockConflicts      prometheus.Counter
	httpRequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "bazarlink_orders_placed_total",
			Help: "Orders successfully placed.",
		}),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "bazarlink_orders_cancelled_total",
			Help: "Orders cancelled by customers or partners.",
		}),
		OrdersDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "bazarlink_orders_delivered_total",
			Help: "Orders delivered with a verified passcode.",
		}),
		StockConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "bazarlink_stock_conflicts_total",
			Help: "Placements that lost a stock race and were rolled back.",
		}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bazarlink_http_request_duration_seconds",
			Help:    "HTTP request latency by method, path pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequestDuration.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
