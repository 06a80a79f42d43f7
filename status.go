// Copyright 2016 Google Inc. All Rights Reserved.
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

import "fmt"

// ConsoleStatus drains a Progress channel and renders it as a single
// overwriting status line, in the spirit of the original's StatusPrinter:
// "[done/total] last node" while the build runs, one final summary line
// once it's done.
type ConsoleStatus struct {
	printer *LinePrinter

	failed []string
}

// NewConsoleStatus creates a ConsoleStatus writing to printer.
func NewConsoleStatus(printer *LinePrinter) *ConsoleStatus {
	return &ConsoleStatus{printer: printer}
}

// Run drains events until the channel closes, printing progress as it
// goes. It returns the accumulated list of node descriptions that failed,
// in the order they were reported.
func (c *ConsoleStatus) Run(events <-chan Event, graph *Graph) []string {
	for ev := range events {
		switch ev.Kind {
		case EventStarted:
			c.printer.Print(fmt.Sprintf("[%d/%d] building %s", ev.Done, ev.Total, describeNode(graph, ev.Node)))
		case EventCompleted:
			c.printer.Print(fmt.Sprintf("[%d/%d] built %s", ev.Done, ev.Total, describeNode(graph, ev.Node)))
		case EventFailed:
			desc := describeNode(graph, ev.Node)
			c.failed = append(c.failed, desc)
			c.printer.PrintOnNewLine(fmt.Sprintf("FAILED: %s: %v\n", desc, ev.Err))
		case EventFinished:
			c.printer.PrintOnNewLine(fmt.Sprintf("build complete: %d/%d\n", ev.Done, ev.Total))
		case EventException:
			c.printer.PrintOnNewLine(fmt.Sprintf("build aborted after %d/%d: %v\n", ev.Done, ev.Total, ev.Err))
		}
	}
	return c.failed
}

func describeNode(graph *Graph, id NodeID) string {
	switch graph.Kind(id) {
	case KindSourceFile:
		return graph.Path(id)
	case KindGeneratedFile:
		return graph.GeneratedFileName(id)
	default:
		return fmt.Sprintf("node#%d", id)
	}
}
