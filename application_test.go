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
	"path/filepath"
	"testing"
)

// upperBuilder copies its single input to its single output uppercased,
// reporting no implicit dependencies. Enough to exercise the full
// rehydrate-or-build protocol without needing the CLI's demo builder.
type upperBuilder struct{ calls *int }

func (upperBuilder) Hash() FullHash        { return HashIterable([]any{"upperBuilder"}) }
func (upperBuilder) OutputCount(int) int   { return 1 }
func (b upperBuilder) Build(ctx context.Context, kctx *Context, in, out []string) ([]string, error) {
	if b.calls != nil {
		*b.calls++
	}
	data, err := os.ReadFile(in[0])
	if err != nil {
		return nil, err
	}
	up := make([]byte, len(data))
	for i, c := range data {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		up[i] = c
	}
	if err := os.WriteFile(out[0], up, 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

func newTestContext(t *testing.T, g *Graph, c *Cache) *Context {
	t.Helper()
	kctx, err := NewContext(t.TempDir(), c, g, nil)
	if err != nil {
		t.Fatal(err)
	}
	return kctx
}

func TestUpdateApplicationBuildsThenCacheHits(t *testing.T) {
	scratch := t.TempDir()
	inPath := filepath.Join(scratch, "in.txt")
	if err := os.WriteFile(inPath, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	in, err := g.NewSourceFile(inPath)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	builderID := g.NewBuilder(upperBuilder{calls: &calls})
	appID, outs, err := g.NewApplication(builderID, []NodeID{in}, []string{"out.txt"})
	if err != nil {
		t.Fatal(err)
	}

	kctx := newTestContext(t, g, cache)
	if err := g.UpdateApplication(context.Background(), kctx, appID); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("builder called %d times, want 1", calls)
	}

	outPath, err := g.GeneratedFilePath(outs[0])
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "HELLO" {
		t.Fatalf("output = %q, want HELLO", data)
	}

	// A second, fresh Application over the same builder+input should
	// rehydrate from cache without invoking the builder again.
	g2 := NewGraph(cache, nil)
	in2, err := g2.NewSourceFile(inPath)
	if err != nil {
		t.Fatal(err)
	}
	builderID2 := g2.NewBuilder(upperBuilder{calls: &calls})
	appID2, _, err := g2.NewApplication(builderID2, []NodeID{in2}, []string{"out.txt"})
	if err != nil {
		t.Fatal(err)
	}
	kctx2 := newTestContext(t, g2, cache)
	if err := g2.UpdateApplication(context.Background(), kctx2, appID2); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("builder called %d times after rehydrate, want still 1", calls)
	}
}

func TestUpdateApplicationPropagatesBuilderError(t *testing.T) {
	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	in, err := g.NewSourceFile(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatal(err)
	}
	builderID := g.NewBuilder(upperBuilder{})
	appID, _, err := g.NewApplication(builderID, []NodeID{in}, []string{"out.txt"})
	if err != nil {
		t.Fatal(err)
	}

	kctx := newTestContext(t, g, cache)
	if err := g.UpdateApplication(context.Background(), kctx, appID); err == nil {
		t.Fatal("expected error building from a missing input file")
	}
	if kctx.FirstError() != nil {
		t.Error("UpdateApplication itself should not record failure; that's the engine's job")
	}
}
