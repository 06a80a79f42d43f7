// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kiln

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the build's timing/counting registry, the real-library
// replacement for the original's hand-rolled Metric/ScopedMetric/Stopwatch
// trio: every named code path gets a count and a total duration, and the
// registry can be scraped or dumped at the end of a run. Where the
// original kept one process-wide g_metrics singleton, each Context owns
// its own Metrics so concurrent builds (tests, a daemon serving several
// requests) don't share counters.
type Metrics struct {
	registry *prometheus.Registry

	applyDuration *prometheus.HistogramVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheEvicted  prometheus.Counter
	nodesBuilt    prometheus.Counter
}

// NewMetrics creates a fresh, independent metrics registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Name:      "update_duration_seconds",
			Help:      "Time spent applying a single node's Update, by node kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiln", Name: "cache_hits_total",
			Help: "Applications resolved by rehydrating a cached implicit-dependency candidate.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiln", Name: "cache_misses_total",
			Help: "Applications that required invoking their Builder.",
		}),
		cacheEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiln", Name: "cache_evicted_total",
			Help: "Cache entries evicted to make room for a new Put.",
		}),
		nodesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiln", Name: "nodes_built_total",
			Help: "Applications whose Builder ran and whose outputs were stored in the cache.",
		}),
	}
	reg.MustRegister(m.applyDuration, m.cacheHits, m.cacheMisses, m.cacheEvicted, m.nodesBuilt)
	return m
}

// Registry exposes the underlying prometheus registry, e.g. for an
// http.Handler serving /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Stopwatch is a restartable timer, the direct analogue of the original's
// Stopwatch type, kept because "time this span, then report it against a
// named metric" is a shape prometheus's histogram API doesn't give you for
// free.
type Stopwatch struct {
	started time.Time
}

// NewStopwatch creates a Stopwatch already started.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{started: time.Now()}
}

// Restart resets the stopwatch to zero elapsed time.
func (s *Stopwatch) Restart() {
	s.started = time.Now()
}

// Elapsed returns the seconds since the last Restart (or construction).
func (s *Stopwatch) Elapsed() float64 {
	return time.Since(s.started).Seconds()
}

// RecordUpdate reports how long a single node's Update took, grouped by
// node kind, the direct replacement for a METRIC_RECORD("update:"+kind)
// scope in the original.
func (m *Metrics) RecordUpdate(kind Kind, sw *Stopwatch) {
	m.applyDuration.WithLabelValues(kind.String()).Observe(sw.Elapsed())
}

// CacheHit/CacheMiss/CacheEvicted/NodeBuilt record the corresponding
// counters; UpdateApplication and Cache call these directly rather than
// threading a *Metrics through every internal helper.
func (m *Metrics) CacheHit()     { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()    { m.cacheMisses.Inc() }
func (m *Metrics) CacheEvicted() { m.cacheEvicted.Inc() }
func (m *Metrics) NodeBuilt()    { m.nodesBuilt.Inc() }
