package canvas

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Committed *prometheus.CounterVec
	Undos     prometheus.Counter
	Cancelled prometheus.Counter
	Saves     *prometheus.CounterVec
	Replay    prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Committed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "screenspec_canvas_annotations_committed_total",
				Help: "Total number of annotations committed, by kind",
			}, []string{"kind"}),
			Undos: promauto.NewCounter(prometheus.CounterOpts{
				Name: "screenspec_canvas_undos_total",
				Help: "Total number of annotations removed by undo",
			}),
			Cancelled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "screenspec_canvas_gestures_cancelled_total",
				Help: "Total number of drag gestures aborted before commit",
			}),
			Saves: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "screenspec_canvas_saves_total",
				Help: "Total number of save attempts, by result",
			}, []string{"result"}),
			Replay: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "screenspec_canvas_replay_duration_seconds",
				Help:    "Time spent replaying every annotation over the base image",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) RecordCommit(kind string) {
	if m == nil || m.Committed == nil {
		return
	}
	m.Committed.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordUndo() {
	if m == nil || m.Undos == nil {
		return
	}
	m.Undos.Inc()
}

func (m *Metrics) RecordCancel() {
	if m == nil || m.Cancelled == nil {
		return
	}
	m.Cancelled.Inc()
}

func (m *Metrics) RecordSave(err error) {
	if m == nil || m.Saves == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Saves.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReplay(d time.Duration) {
	if m == nil || m.Replay == nil {
		return
	}
	m.Replay.Observe(d.Seconds())
}
