// Copyright (C) 2024 sitroom contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics exposes run-level Prometheus counters and a duration
// histogram for the pipeline. The registry is always populated so tests can
// assert on it; it is only served over HTTP when a metrics address is
// configured.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics holds the Prometheus collectors for one run of the
// pipeline.
type PipelineMetrics struct {
	AlertsProcessedTotal   prometheus.Counter
	AlertsSkippedTotal     *prometheus.CounterVec
	SituationsCreatedTotal prometheus.Counter
	CorrelationsFoundTotal *prometheus.CounterVec
	PipelineDuration       *prometheus.HistogramVec
	PathGatingApplicable   prometheus.Counter
}

var (
	instance *PipelineMetrics
	once     sync.Once
)

// New returns the process-wide PipelineMetrics, creating and registering it
// on the default registry on first call.
func New() *PipelineMetrics {
	once.Do(func() {
		instance = create()
	})
	return instance
}

func create() *PipelineMetrics {
	m := &PipelineMetrics{
		AlertsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitroom_alerts_processed_total",
			Help: "Total number of alert records accepted by the normalizer.",
		}),
		AlertsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitroom_alerts_skipped_total",
				Help: "Total number of alert records skipped, by reason.",
			},
			[]string{"reason"},
		),
		SituationsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitroom_situations_created_total",
			Help: "Total number of situations assembled across all runs.",
		}),
		CorrelationsFoundTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitroom_correlations_found_total",
				Help: "Total number of correlation records produced, by kernel.",
			},
			[]string{"kernel"},
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitroom_pipeline_duration_seconds",
				Help:    "Wall-clock duration of a full pipeline run, by stage.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		PathGatingApplicable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitroom_path_gating_applied_total",
			Help: "Total number of cause selections whose confidence was capped by path gating.",
		}),
	}

	safeRegister(
		m.AlertsProcessedTotal,
		m.AlertsSkippedTotal,
		m.SituationsCreatedTotal,
		m.CorrelationsFoundTotal,
		m.PipelineDuration,
		m.PathGatingApplicable,
	)

	return m
}

// safeRegister registers collectors, ignoring AlreadyRegisteredError so
// repeated calls to New (e.g. across tests) don't panic.
func safeRegister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

// Serve starts the Prometheus HTTP endpoint on addr (e.g. ":9090") and
// blocks until it returns an error. Callers that don't set --metrics-addr
// never invoke this; the registry above is populated either way.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// Timer measures the duration of one pipeline stage and records it against
// a labeled histogram observer on Stop.
type Timer struct {
	start time.Time
	stage string
	hist  *prometheus.HistogramVec
}

// NewTimer starts a timer for the named stage.
func NewTimer(hist *prometheus.HistogramVec, stage string) *Timer {
	return &Timer{start: time.Now(), stage: stage, hist: hist}
}

// Stop records the elapsed duration and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.hist.WithLabelValues(t.stage).Observe(d.Seconds())
	return d
}
