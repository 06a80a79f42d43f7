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

import "sync"

// EventKind distinguishes the events a worker posts to the Progress channel.
type EventKind uint8

const (
	// EventStarted means a node's Update began running.
	EventStarted EventKind = iota
	// EventCompleted means a node's Update returned nil.
	EventCompleted
	// EventFailed means a node's Update returned a non-nil error.
	EventFailed
	// EventFinished is the terminal event: every submitted node has been
	// accounted for and no more events will arrive. Per spec.md §4.F this
	// is emitted exactly once.
	EventFinished
	// EventException is the terminal event emitted in place of
	// EventFinished when the build is aborted by a failure. It carries the
	// first error recorded on the Context.
	EventException
)

// Event is a single message posted to a Progress channel.
type Event struct {
	Kind EventKind
	Node NodeID
	Err  error

	// Total/Done are a snapshot of the overall task count at the moment
	// this event was posted, for status lines like "3/12".
	Total int
	Done  int
}

// Progress is a single-reader, multi-writer (MPSC) event stream: any number
// of worker goroutines post Started/Completed/Failed events concurrently,
// and exactly one consumer (typically a console status printer) drains
// them in Events(). The producer side is wrapped so that callers never
// touch the channel directly and cannot double-close it.
type Progress struct {
	events chan Event

	mu      sync.Mutex
	total   int
	done    int
	closed  bool
}

// NewProgress creates a Progress channel with reasonable buffering so
// worker goroutines posting Started/Completed events don't block on a slow
// consumer under normal operation.
func NewProgress() *Progress {
	return &Progress{events: make(chan Event, 256)}
}

// Events returns the read side of the channel. There must be exactly one
// consumer draining it until it closes.
func (p *Progress) Events() <-chan Event {
	return p.events
}

// SetTotal records the total number of tasks this build will run, so
// subsequent events carry an accurate Total/Done snapshot. Must be called
// once, before any task is submitted (spec.md's Open Question about
// _TargetData being fully constructed before workers observe it applies
// here too: the total is fixed before Phase 2 starts).
func (p *Progress) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

func (p *Progress) post(kind EventKind, node NodeID, err error) {
	p.mu.Lock()
	if kind == EventCompleted || kind == EventFailed {
		p.done++
	}
	ev := Event{Kind: kind, Node: node, Err: err, Total: p.total, Done: p.done}
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.events <- ev
}

// Started posts an EventStarted for node.
func (p *Progress) Started(node NodeID) { p.post(EventStarted, node, nil) }

// Completed posts an EventCompleted for node.
func (p *Progress) Completed(node NodeID) { p.post(EventCompleted, node, nil) }

// Failed posts an EventFailed for node carrying err.
func (p *Progress) Failed(node NodeID, err error) { p.post(EventFailed, node, err) }

// Finish posts the terminal event and closes the channel. If err is
// non-nil, EventException is posted instead of EventFinished. Finish must
// be called exactly once, after every worker has stopped submitting
// events; it is idempotent to permit a deferred call alongside an explicit
// one on an error path.
func (p *Progress) Finish(err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	kind := EventFinished
	if err != nil {
		kind = EventException
	}
	ev := Event{Kind: kind, Err: err, Total: p.total, Done: p.done}
	p.mu.Unlock()

	p.events <- ev
	close(p.events)
}
