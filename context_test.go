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
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewContextCreatesTempDirectory(t *testing.T) {
	root := t.TempDir()
	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	kctx, err := NewContext(root, cache, g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(kctx.TempDirectory); err != nil {
		t.Fatalf("TempDirectory should exist: %v", err)
	}
	if kctx.Metrics == nil || kctx.Progress == nil {
		t.Fatal("NewContext should wire Metrics and Progress")
	}
}

func TestContextStopAndFirstError(t *testing.T) {
	root := t.TempDir()
	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	kctx, err := NewContext(root, cache, g, nil)
	if err != nil {
		t.Fatal(err)
	}
	if kctx.Stopped() {
		t.Fatal("fresh Context should not be stopped")
	}

	want := errors.New("boom")
	kctx.recordFailure(want)
	if !kctx.Stopped() {
		t.Error("recordFailure should stop the context")
	}
	if kctx.FirstError() != want {
		t.Errorf("FirstError = %v, want %v", kctx.FirstError(), want)
	}

	// A second failure must not overwrite the first.
	kctx.recordFailure(errors.New("second"))
	if kctx.FirstError() != want {
		t.Error("FirstError should keep the first recorded error")
	}
}

// TestContextRecordFailureMixedErrorTypes guards against a regression
// where firstErr was an atomic.Value: CompareAndSwap/Store panics if two
// calls ever supply differently-typed concrete errors, which is the
// common case here (sentinel errors, fmt-wrapped errors, wrapped
// *fs.PathError, ...) when several Applications fail concurrently.
func TestContextRecordFailureMixedErrorTypes(t *testing.T) {
	root := t.TempDir()
	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	kctx, err := NewContext(root, cache, g, nil)
	if err != nil {
		t.Fatal(err)
	}

	errs := []error{
		errors.New("plain sentinel"),
		fmt.Errorf("wrapped: %w", ErrCancelled),
		&fs.PathError{Op: "open", Path: "/nope", Err: errors.New("boom")},
		ErrTimeout,
	}

	var wg sync.WaitGroup
	for _, e := range errs {
		wg.Add(1)
		go func(e error) {
			defer wg.Done()
			kctx.recordFailure(e)
		}(e)
	}
	wg.Wait()

	if kctx.FirstError() == nil {
		t.Fatal("expected a recorded error")
	}
	if !kctx.Stopped() {
		t.Error("recordFailure should stop the context")
	}
}

func TestContextTempDirAndTempFile(t *testing.T) {
	root := t.TempDir()
	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	kctx, err := NewContext(root, cache, g, nil)
	if err != nil {
		t.Fatal(err)
	}

	dir, cleanupDir, err := kctx.TempDir()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}
	cleanupDir()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("TempDir cleanup should remove the directory")
	}

	path, cleanupFile, err := kctx.TempFile("txt")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".txt" {
		t.Errorf("TempFile path = %q, want .txt suffix", path)
	}
	cleanupFile()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("TempFile cleanup should remove the file")
	}
}
