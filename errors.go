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
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for programmer-error kinds: callers are expected to use
// errors.Is against these rather than match on message text.
var (
	// ErrCacheTooSmall is returned by Cache.Put when a single item is larger
	// than the cache's size limit; the cache is left unchanged.
	ErrCacheTooSmall = errors.New("kiln: item is larger than the cache size limit")

	// ErrCacheCorrupt is returned by VerifyState when an invariant fails and
	// by GetCandidateImplicitDependencies when the partial index names a
	// missing entry. Load does not return it: a cache that fails
	// verification after loading is reset to empty instead.
	ErrCacheCorrupt = errors.New("kiln: cache metadata failed verification")

	// ErrDependencyAlreadyExists is raised by Graph.AddDependency when the
	// edge already exists. Graph misuse: always a programmer error.
	ErrDependencyAlreadyExists = errors.New("kiln: dependency already exists")

	// ErrDependencyMissing is raised by Graph.RemoveDependency when the edge
	// being removed does not exist.
	ErrDependencyMissing = errors.New("kiln: dependency does not exist")

	// ErrMalformedSourceFile is raised when a SourceFile is found with
	// nonzero dependencies: spec.md §4.D requires every SourceFile to be a
	// leaf, so this always indicates the graph was built incorrectly.
	ErrMalformedSourceFile = errors.New("kiln: source file node is malformed")

	// ErrTimeout is returned when a subprocess or daemon wait exceeds its
	// configured timeout.
	ErrTimeout = errors.New("kiln: operation timed out")

	// ErrCancelled is returned by in-flight work observing the engine's
	// cooperative stop flag.
	ErrCancelled = errors.New("kiln: build was cancelled")

	// ErrUnknownTarget is returned when a caller names a target that was
	// never registered with the graph.
	ErrUnknownTarget = errors.New("kiln: unknown target")
)

// CommandFailedError wraps a non-zero subprocess exit, per the Context
// interface's BuilderFailed contract (spec.md §7).
type CommandFailedError struct {
	Argv     []string
	Stdout   string
	Stderr   string
	ExitCode int
	cause    error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("kiln: command %v failed with exit code %d: %s", e.Argv, e.ExitCode, e.Stderr)
}

func (e *CommandFailedError) Unwrap() error {
	return e.cause
}

// newCommandFailedError wraps the originating error with a stack trace via
// pkg/errors so the failure can be traced back to the RunCommand call site,
// while still exposing the structured fields the Context contract promises.
func newCommandFailedError(argv []string, stdout, stderr string, exitCode int, cause error) error {
	return pkgerrors.WithStack(&CommandFailedError{
		Argv:     argv,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		cause:    cause,
	})
}
