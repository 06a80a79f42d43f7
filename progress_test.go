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
	"errors"
	"testing"
)

func drainProgress(p *Progress) []Event {
	var out []Event
	for ev := range p.Events() {
		out = append(out, ev)
	}
	return out
}

func TestProgressOrdersEventsPerNode(t *testing.T) {
	p := NewProgress()
	p.SetTotal(1)
	done := make(chan []Event, 1)
	go func() { done <- drainProgress(p) }()

	p.Started(NodeID(1))
	p.Completed(NodeID(1))
	p.Finish(nil)

	events := <-done
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Kind != EventStarted || events[1].Kind != EventCompleted || events[2].Kind != EventFinished {
		t.Fatalf("event kinds = %v", []EventKind{events[0].Kind, events[1].Kind, events[2].Kind})
	}
}

func TestProgressFinishIsIdempotent(t *testing.T) {
	p := NewProgress()
	done := make(chan []Event, 1)
	go func() { done <- drainProgress(p) }()

	p.Finish(nil)
	p.Finish(errors.New("should be ignored"))

	events := <-done
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1 (second Finish should be a no-op)", len(events))
	}
	if events[0].Kind != EventFinished {
		t.Errorf("Kind = %v, want EventFinished", events[0].Kind)
	}
}

func TestProgressFinishWithErrorEmitsException(t *testing.T) {
	p := NewProgress()
	done := make(chan []Event, 1)
	go func() { done <- drainProgress(p) }()

	failure := errors.New("boom")
	p.Finish(failure)

	events := <-done
	if len(events) != 1 || events[0].Kind != EventException {
		t.Fatalf("events = %+v, want single EventException", events)
	}
	if events[0].Err != failure {
		t.Errorf("Err = %v, want %v", events[0].Err, failure)
	}
}

func TestProgressDoneCountTracksCompletedAndFailed(t *testing.T) {
	p := NewProgress()
	p.SetTotal(2)
	done := make(chan []Event, 1)
	go func() { done <- drainProgress(p) }()

	p.Started(NodeID(1))
	p.Completed(NodeID(1))
	p.Started(NodeID(2))
	p.Failed(NodeID(2), errors.New("x"))
	p.Finish(nil)

	events := <-done
	last := events[len(events)-1]
	if last.Done != 2 || last.Total != 2 {
		t.Errorf("final snapshot = %+v, want Done=2 Total=2", last)
	}
}

func TestProgressPostAfterCloseIsSilent(t *testing.T) {
	p := NewProgress()
	done := make(chan []Event, 1)
	go func() { done <- drainProgress(p) }()

	p.Finish(nil)
	<-done

	// Posting after the channel has closed must not panic or block.
	p.Started(NodeID(1))
	p.Completed(NodeID(1))
}
