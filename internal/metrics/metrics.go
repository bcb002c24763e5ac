// Package metrics exposes Prometheus instrumentation for batch runs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "audio2text"

// Job counters (incremented by the orchestrator).
var (
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Jobs processed, by terminal status.",
	}, []string{"status"})

	SegmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segments_total",
		Help:      "Transcript segments produced.",
	})

	AudioSecondsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_seconds_total",
		Help:      "Seconds of source audio transcribed.",
	})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall-clock job processing time in seconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s → ~1h
	})
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		SegmentsTotal,
		AudioSecondsTotal,
		JobDuration,
	)
}

// BatchStats provides the collector access to live orchestrator state.
type BatchStats interface {
	QueueDepth() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats      BatchStats
	queueDepth *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// stats may be nil (gauges report 0).
func NewCollector(stats BatchStats) *Collector {
	return &Collector{
		stats: stats,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "watch_queue_depth"),
			"Files waiting to be transcribed in watch mode.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
}

// RegisterCollector adds a live-state collector to the default registry.
func RegisterCollector(c *Collector) {
	prometheus.MustRegister(c)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	depth := 0
	if c.stats != nil {
		depth = c.stats.QueueDepth()
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(depth))
}
