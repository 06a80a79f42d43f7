// Copyright 2013 Google Inc. All Rights Reserved.
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
	"fmt"
	"io"
	"os"
)

// LinePrinter writes progress lines that overwrite each other on a smart
// terminal (one status line that updates in place) and fall back to plain
// newline-terminated output otherwise (when piped to a file, or when
// stdout isn't a terminal at all).
type LinePrinter struct {
	out           io.Writer
	smartTerminal bool
	haveBlankLine bool
}

// NewLinePrinter creates a LinePrinter writing to out. smartTerminal
// should be true only when out is an interactive terminal; callers
// typically derive it from term.IsTerminal(fd) or the $TERM/$CI
// environment rather than hardcoding it.
func NewLinePrinter(out io.Writer, smartTerminal bool) *LinePrinter {
	return &LinePrinter{out: out, smartTerminal: smartTerminal, haveBlankLine: true}
}

// NewConsoleLinePrinter builds a LinePrinter for stdout, auto-detecting
// whether it's a terminal worth overwriting.
func NewConsoleLinePrinter() *LinePrinter {
	info, err := os.Stdout.Stat()
	smart := err == nil && (info.Mode()&os.ModeCharDevice) != 0 && os.Getenv("TERM") != "dumb"
	return NewLinePrinter(os.Stdout, smart)
}

// Print writes toPrint as the current status line, overwriting the
// previous one on a smart terminal.
func (l *LinePrinter) Print(toPrint string) {
	if l.smartTerminal {
		fmt.Fprintf(l.out, "\r%s\x1b[K", toPrint)
	} else {
		fmt.Fprintln(l.out, toPrint)
	}
	l.haveBlankLine = false
}

// PrintOnNewLine writes toPrint on its own line, first finishing off
// whatever status line was mid-overwrite, so output that must not be
// clobbered (a failure, a build log) never lands on top of a progress
// line.
func (l *LinePrinter) PrintOnNewLine(toPrint string) {
	if !l.haveBlankLine {
		fmt.Fprintln(l.out)
	}
	if toPrint != "" {
		fmt.Fprint(l.out, toPrint)
	}
	l.haveBlankLine = toPrint == "" || toPrint[len(toPrint)-1] == '\n'
}
