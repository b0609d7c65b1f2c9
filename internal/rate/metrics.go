package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	tokensGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "techhome_rate_limit_tokens",
			Help: "Request tokens left in the provider bucket",
		},
		[]string{"provider"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "techhome_rate_limit_retry_after_seconds",
			Help: "Most recent provider-imposed cooldown",
		},
		[]string{"provider"},
	)
	lastStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "techhome_rate_limit_last_status_code",
			Help: "Last HTTP status code observed by the rate-limit wrapper",
		},
		[]string{"provider"},
	)
	refusedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techhome_rate_limit_refused_total",
			Help: "Requests refused locally before reaching the provider",
		},
		[]string{"provider", "reason"},
	)
)

// MetricsCollectors exposes shared rate-limit collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		tokensGauge,
		retryAfterGauge,
		lastStatusGauge,
		refusedCounter,
	}
}
