// Package metrics exposes Prometheus counters for radio link traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// RadioMetrics counts frames exchanged with the module. A nil *RadioMetrics
// is valid and records nothing.
type RadioMetrics struct {
	FramesIn        *prometheus.CounterVec // labels: frame_type
	FramesOut       *prometheus.CounterVec // labels: frame_type
	DecodeErrors    prometheus.Counter
	ReadErrors      prometheus.Counter
	ConnectAttempts *prometheus.CounterVec // labels: result=ok|error
}

func NewRadioMetrics(reg prometheus.Registerer) *RadioMetrics {
	m := &RadioMetrics{
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbee_frames_in_total",
			Help: "API frames read from the module by frame type.",
		}, []string{"frame_type"}),
		FramesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbee_frames_out_total",
			Help: "API frames written to the module by frame type.",
		}, []string{"frame_type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xbee_decode_errors_total",
			Help: "Frames whose payload failed to decode.",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xbee_read_errors_total",
			Help: "Link read failures, including checksum mismatches.",
		}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbee_connect_attempts_total",
			Help: "Transport connect attempts.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.FramesIn, m.FramesOut, m.DecodeErrors, m.ReadErrors, m.ConnectAttempts)
	return m
}

func (m *RadioMetrics) FrameIn(frameType string) {
	if m == nil {
		return
	}
	m.FramesIn.WithLabelValues(frameType).Inc()
}

func (m *RadioMetrics) FrameOut(frameType string) {
	if m == nil {
		return
	}
	m.FramesOut.WithLabelValues(frameType).Inc()
}

func (m *RadioMetrics) DecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

func (m *RadioMetrics) ReadError() {
	if m == nil {
		return
	}
	m.ReadErrors.Inc()
}

func (m *RadioMetrics) Connect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}
