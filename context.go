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
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context is handed by the engine to every Builder.Build call and to the
// traversal internals. It bundles the graph, the cache, scratch-space
// helpers, and the cooperative cancellation flag described in spec.md §5.
//
// Context corresponds to spec.md §6's "Context interface (supplied by the
// core to builders)"; RunCommand lives in subprocess.go, TempDir/TempFile
// below.
type Context struct {
	Graph *Graph
	Cache *Cache

	// BuildDirectory is the root of this build; TempDirectory is where
	// scratch directories and files are created. Both must exist before a
	// build starts.
	BuildDirectory string
	TempDirectory  string

	Progress *Progress
	Metrics  *Metrics
	Logger   *zap.Logger

	stopFlag atomic.Bool

	firstErrMu sync.Mutex
	firstErr   error
}

// NewContext creates a Context rooted at buildDirectory. It ensures the
// temp directory exists.
func NewContext(buildDirectory string, cache *Cache, graph *Graph, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tempDir := filepath.Join(buildDirectory, "tmp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	cache.SetMetrics(metrics)
	return &Context{
		Graph:          graph,
		Cache:          cache,
		BuildDirectory: buildDirectory,
		TempDirectory:  tempDir,
		Progress:       NewProgress(),
		Metrics:        metrics,
		Logger:         logger,
	}, nil
}

// Stop cooperatively cancels the build: running tasks observe it at their
// next safe point (before a Build call and after each cache mutation) and
// return ErrCancelled; no new tasks are submitted.
func (c *Context) Stop() {
	c.stopFlag.Store(true)
}

// Stopped reports whether Stop was called.
func (c *Context) Stopped() bool {
	return c.stopFlag.Load()
}

// recordFailure stores the first error seen across all update tasks and
// stops further submissions, per spec.md §4.E/§7's failure semantics.
//
// A mutex guards firstErr rather than an atomic.Value: UpdateApplication
// fails with many different concrete error types across concurrent
// Applications (sentinel errors, fmt-wrapped errors, pkg/errors-wrapped
// *CommandFailedError, raw *fs.PathError, ...), and atomic.Value panics if
// a Store/CompareAndSwap ever sees two different concrete types in the
// same Value. A plain mutex-protected field has no such restriction.
func (c *Context) recordFailure(err error) {
	c.firstErrMu.Lock()
	if c.firstErr == nil {
		c.firstErr = err
	}
	c.firstErrMu.Unlock()
	c.Stop()
}

// FirstError returns the first error recorded by any update task, or nil.
func (c *Context) FirstError() error {
	c.firstErrMu.Lock()
	defer c.firstErrMu.Unlock()
	return c.firstErr
}

// TempDir creates a fresh scratch directory under TempDirectory and
// returns its path plus a cleanup function that removes it. The caller
// must call cleanup on every exit path (matching the original's
// context-manager semantics: "the directory is deleted when the context
// manager ends").
func (c *Context) TempDir() (string, func(), error) {
	dir, err := os.MkdirTemp(c.TempDirectory, "")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// TempFile reserves a unique path under TempDirectory with the given
// suffix (no leading dot required), creates it, closes it immediately (so
// it can be reopened by another process, notably on Windows), and returns
// a cleanup function that removes it.
func (c *Context) TempFile(suffix string) (string, func(), error) {
	pattern := "*"
	if suffix != "" {
		pattern += "." + suffix
	}
	f, err := os.CreateTemp(c.TempDirectory, pattern)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	f.Close()
	return path, func() { os.Remove(path) }, nil
}

// scratchName generates a short unique basename for scratch directories
// where a stable, collision-free name is needed outside of MkdirTemp (for
// example a daemon's per-request working directory).
func scratchName() string {
	return uuid.NewString()
}
