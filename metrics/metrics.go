package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interpserve_jobs_finished_total",
		Help: "Jobs that reached a final state, by outcome",
	}, []string{"outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interpserve_job_duration_seconds",
		Help:    "Wall time of the SVFI run per job",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interpserve_queue_depth",
		Help: "Jobs waiting behind the running one",
	})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interpserve_jobs_in_flight",
		Help: "Jobs currently running SVFI",
	})

	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interpserve_publish_total",
		Help: "Output uploads to publish targets, by backend and result",
	}, []string{"backend", "result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
