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
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

// FileMonitor watches a set of paths for external changes and reports
// them on Changes(). It is where "externally changed" events come from
// (spec.md §9 keeps that term separate from "dirty", which means needs
// rebuild): a monitor never decides what needs rebuilding, it only
// reports that a watched file's content may no longer match what the
// graph last hashed. ApplyChanges is what turns those reports into
// dirty flags.
type FileMonitor interface {
	// Watch adds path to the watched set. Safe to call while Run is active.
	Watch(path string) error
	// Changes returns the channel that paths are reported on.
	Changes() <-chan string
	// Run blocks, reporting changes until ctx is cancelled.
	Run(ctx context.Context) error
}

// PollingMonitor is a stat-loop FileMonitor: it has no OS-level
// notification dependency, which makes it the right choice for tests and
// for platforms without a working inotify/FSEvents/ReadDirectoryChanges
// binding. Production deployments should prefer an event-driven monitor;
// none is wired by default because this module's examples carry no
// dedicated watch library, only fsnotify as a transitive viper dependency
// not intended for direct use.
type PollingMonitor struct {
	interval time.Duration
	log      *zap.Logger

	changes chan string
	watch   chan string
}

// NewPollingMonitor creates a PollingMonitor that checks watched paths
// every interval.
func NewPollingMonitor(interval time.Duration, logger *zap.Logger) *PollingMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &PollingMonitor{
		interval: interval,
		log:      logger,
		changes:  make(chan string, 64),
		watch:    make(chan string, 64),
	}
}

func (m *PollingMonitor) Watch(path string) error {
	m.watch <- path
	return nil
}

func (m *PollingMonitor) Changes() <-chan string {
	return m.changes
}

func (m *PollingMonitor) Run(ctx context.Context) error {
	type state struct {
		modTime time.Time
		size    int64
	}
	watched := map[string]state{}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	statOne := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		cur := state{modTime: info.ModTime(), size: info.Size()}
		prev, ok := watched[path]
		watched[path] = cur
		if ok && (cur.modTime != prev.modTime || cur.size != prev.size) {
			select {
			case m.changes <- path:
			case <-ctx.Done():
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-m.watch:
			if _, ok := watched[path]; !ok {
				statOne(path)
				if _, ok := watched[path]; !ok {
					watched[path] = state{}
				}
			}
		case <-ticker.C:
			for path := range watched {
				statOne(path)
			}
		}
	}
}

// ApplyChanges drains a FileMonitor's Changes channel (non-blocking) and
// marks the corresponding SourceFile nodes dirty, returning how many were
// marked. Callers typically run this once per build-loop iteration, right
// before re-registering targets.
func ApplyChanges(g *Graph, mon FileMonitor) int {
	n := 0
	for {
		select {
		case path := <-mon.Changes():
			id, err := g.NewSourceFile(path)
			if err != nil {
				continue
			}
			g.SetDirty(id, true)
			n++
		default:
			return n
		}
	}
}
