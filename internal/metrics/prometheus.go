package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	authorizationsTotal prometheus.Counter
	stateChecksTotal    *prometheus.CounterVec
	exchangesTotal      *prometheus.CounterVec
	refreshesTotal      *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		authorizationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fic_oauth_authorizations_total",
			Help: "Total number of authorization URLs issued.",
		}),
		stateChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fic_oauth_state_checks_total",
			Help: "Total number of callback state validations.",
		}, []string{"valid"}),
		exchangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fic_oauth_code_exchanges_total",
			Help: "Total number of authorization code exchanges.",
		}, []string{"result"}),
		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fic_oauth_token_refreshes_total",
			Help: "Total number of token refresh attempts.",
		}, []string{"result"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fic_oauth_errors_total",
			Help: "Total number of classified OAuth2 errors.",
		}, []string{"category", "code"}),
	}

	reg.MustRegister(
		c.authorizationsTotal,
		c.stateChecksTotal,
		c.exchangesTotal,
		c.refreshesTotal,
		c.errorsTotal,
	)

	return c
}

// AuthorizationStarted increments the authorization counter.
func (c *PrometheusCollector) AuthorizationStarted() {
	c.authorizationsTotal.Inc()
}

// StateValidated records a state check outcome.
func (c *PrometheusCollector) StateValidated(valid bool) {
	c.stateChecksTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// TokenExchanged records a code exchange outcome.
func (c *PrometheusCollector) TokenExchanged(result string) {
	c.exchangesTotal.WithLabelValues(result).Inc()
}

// TokenRefreshed records a refresh outcome.
func (c *PrometheusCollector) TokenRefreshed(result string) {
	c.refreshesTotal.WithLabelValues(result).Inc()
}

// ErrorRecorded counts a classified error.
func (c *PrometheusCollector) ErrorRecorded(category, code string) {
	c.errorsTotal.WithLabelValues(category, code).Inc()
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
