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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.CacheEvicted()
	m.NodeBuilt()

	if got := testutil.ToFloat64(m.cacheHits); got != 2 {
		t.Errorf("cacheHits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 1 {
		t.Errorf("cacheMisses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cacheEvicted); got != 1 {
		t.Errorf("cacheEvicted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.nodesBuilt); got != 1 {
		t.Errorf("nodesBuilt = %v, want 1", got)
	}
}

func TestMetricsRecordUpdateObservesHistogram(t *testing.T) {
	m := NewMetrics()
	sw := NewStopwatch()
	time.Sleep(time.Millisecond)
	m.RecordUpdate(KindApplication, sw)

	count := testutil.CollectAndCount(m.applyDuration)
	if count == 0 {
		t.Fatal("expected at least one observation series registered")
	}
}

func TestStopwatchRestart(t *testing.T) {
	sw := NewStopwatch()
	time.Sleep(time.Millisecond)
	first := sw.Elapsed()
	sw.Restart()
	second := sw.Elapsed()
	if second >= first {
		t.Errorf("Elapsed after Restart (%v) should be smaller than before (%v)", second, first)
	}
}
