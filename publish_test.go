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

func TestPublishTargetsSourceFile(t *testing.T) {
	g := NewGraph(nil, nil)
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := g.NewSourceFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// publishDir lives outside buildDir here, so the link target stays
	// absolute.
	buildDir := t.TempDir()
	publishDir := t.TempDir()
	targets := []*TargetData{{Name: "a", Node: id}}
	if err := PublishTargets(g, targets, publishDir, buildDir, nil); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(publishDir, "a")
	resolved, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("symlink target = %q, want %q", resolved, path)
	}
}

func TestPublishTargetsRelativeLinkUnderBuildDir(t *testing.T) {
	buildDir := t.TempDir()
	srcDir := filepath.Join(buildDir, "cache")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(srcDir, "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := NewGraph(nil, nil)
	id, err := g.NewSourceFile(path)
	if err != nil {
		t.Fatal(err)
	}

	publishDir := filepath.Join(buildDir, "published")
	targets := []*TargetData{{Name: "a", Node: id}}
	if err := PublishTargets(g, targets, publishDir, buildDir, nil); err != nil {
		t.Fatal(err)
	}

	link := filepath.Join(publishDir, "a")
	resolved, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.IsAbs(resolved) {
		t.Errorf("symlink target = %q, want a relative path since publishDir is under buildDir", resolved)
	}
	if got := filepath.Join(publishDir, resolved); got != path {
		t.Errorf("resolved relative link = %q, want %q", got, path)
	}
}

// twoOutputBuilder writes its single input's bytes to both of its outputs,
// for tests that need an Application with more than one GeneratedFile.
type twoOutputBuilder struct{}

func (twoOutputBuilder) Hash() FullHash      { return HashIterable([]any{"twoOutputBuilder"}) }
func (twoOutputBuilder) OutputCount(int) int { return 2 }
func (twoOutputBuilder) Build(ctx context.Context, kctx *Context, in, out []string) ([]string, error) {
	data, err := os.ReadFile(in[0])
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func TestPublishTargetsApplicationMultipleOutputs(t *testing.T) {
	scratch := t.TempDir()
	inPath := filepath.Join(scratch, "in.txt")
	if err := os.WriteFile(inPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(t.TempDir(), 1<<20, nil)
	g := NewGraph(cache, nil)
	in, err := g.NewSourceFile(inPath)
	if err != nil {
		t.Fatal(err)
	}
	builderID := g.NewBuilder(twoOutputBuilder{})
	appID, _, err := g.NewApplication(builderID, []NodeID{in}, []string{"o1", "o2"})
	if err != nil {
		t.Fatal(err)
	}

	kctx := newTestContext(t, g, cache)
	if err := g.UpdateApplication(context.Background(), kctx, appID); err != nil {
		t.Fatal(err)
	}

	publishDir := t.TempDir()
	targets := []*TargetData{{Name: "app", Node: appID}}
	if err := PublishTargets(g, targets, publishDir, t.TempDir(), nil); err != nil {
		t.Fatal(err)
	}

	for _, suffix := range []string{".0", ".1"} {
		if _, err := os.Lstat(filepath.Join(publishDir, "app"+suffix)); err != nil {
			t.Errorf("expected published link app%s: %v", suffix, err)
		}
	}
}

func TestPublishTargetsReplacesExistingLink(t *testing.T) {
	g := NewGraph(nil, nil)
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := g.NewSourceFile(path)
	if err != nil {
		t.Fatal(err)
	}

	publishDir := t.TempDir()
	stale := filepath.Join(publishDir, "a")
	if err := os.Symlink("/nonexistent", stale); err != nil {
		t.Fatal(err)
	}

	targets := []*TargetData{{Name: "a", Node: id}}
	if err := PublishTargets(g, targets, publishDir, t.TempDir(), nil); err != nil {
		t.Fatal(err)
	}
	resolved, err := os.Readlink(stale)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("stale link not replaced: resolved to %q", resolved)
	}
}
