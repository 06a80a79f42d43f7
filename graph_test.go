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
	"path/filepath"
	"testing"
)

func TestRegisterTargetAndResolve(t *testing.T) {
	g := NewGraph(nil, nil)
	src, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "a"))

	if err := g.RegisterTarget("alpha", src); err != nil {
		t.Fatal(err)
	}
	targets, err := g.RegisterTargets([]string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].Name != "alpha" || targets[0].Node != src {
		t.Fatalf("RegisterTargets = %+v", targets)
	}
	if got := g.Targets(src); len(got) != 1 || got[0] != targets[0].Node {
		t.Errorf("Targets(src) = %v", got)
	}
}

func TestRegisterTargetSameNodeTwiceIsNoop(t *testing.T) {
	g := NewGraph(nil, nil)
	src, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "a"))
	if err := g.RegisterTarget("alpha", src); err != nil {
		t.Fatal(err)
	}
	if err := g.RegisterTarget("alpha", src); err != nil {
		t.Fatalf("re-registering the same (name, node) pair should be a no-op: %v", err)
	}
}

func TestRegisterTargetConflictingNodeRejected(t *testing.T) {
	g := NewGraph(nil, nil)
	a, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "a"))
	b, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "b"))
	if err := g.RegisterTarget("alpha", a); err != nil {
		t.Fatal(err)
	}
	if err := g.RegisterTarget("alpha", b); err == nil {
		t.Fatal("expected error registering the same name against a different node")
	}
}

func TestRegisterTargetsUnknownName(t *testing.T) {
	g := NewGraph(nil, nil)
	if _, err := g.RegisterTargets([]string{"nope"}); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("RegisterTargets(unknown) = %v, want ErrUnknownTarget", err)
	}
}

func TestRegisterTargetsNilMeansAllInOrder(t *testing.T) {
	g := NewGraph(nil, nil)
	a, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "a"))
	b, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "b"))
	if err := g.RegisterTarget("first", a); err != nil {
		t.Fatal(err)
	}
	if err := g.RegisterTarget("second", b); err != nil {
		t.Fatal(err)
	}

	targets, err := g.RegisterTargets(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 || targets[0].Name != "first" || targets[1].Name != "second" {
		t.Fatalf("RegisterTargets(nil) = %+v, want registration order", targets)
	}
}

func TestRegisterTargetsPropagatesThroughDependencies(t *testing.T) {
	g := NewGraph(nil, nil)
	input, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "in"))
	builderID := g.NewBuilder(nopBuilder{})
	appID, outs, err := g.NewApplication(builderID, []NodeID{input}, []string{"out"})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.RegisterTarget("app", appID); err != nil {
		t.Fatal(err)
	}

	targets, err := g.RegisterTargets([]string{"app"})
	if err != nil {
		t.Fatal(err)
	}
	target := targets[0].Node

	for _, id := range []NodeID{appID, input, builderID, outs[0]} {
		found := false
		for _, tgt := range g.Targets(id) {
			if tgt == target {
				found = true
			}
		}
		if !found {
			t.Errorf("node %v should carry target %v in its targets set", id, target)
		}
	}
}

// TestRegisterTargetsMergesUnmergedDuplicate exercises the merge scenario:
// two distinct SourceFile node instances for the same path, one used as
// the dependency of an Application and the other registered directly as
// the target itself (the "duplicate is the target" edge case).
func TestRegisterTargetsMergesUnmergedDuplicate(t *testing.T) {
	g := NewGraph(nil, nil)
	path := filepath.Join(t.TempDir(), "shared.txt")

	canonical, err := g.NewSourceFile(path)
	if err != nil {
		t.Fatal(err)
	}
	duplicate, err := g.NewUnmergedSourceFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if canonical == duplicate {
		t.Fatal("test setup: expected two distinct node instances")
	}

	builderID := g.NewBuilder(nopBuilder{})
	appID, _, err := g.NewApplication(builderID, []NodeID{canonical}, []string{"out"})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.RegisterTarget("app", appID); err != nil {
		t.Fatal(err)
	}
	if err := g.RegisterTarget("dup", duplicate); err != nil {
		t.Fatal(err)
	}

	targets, err := g.RegisterTargets([]string{"app", "dup"})
	if err != nil {
		t.Fatal(err)
	}

	// "dup" was registered against the stale duplicate node; after
	// canonicalization its TargetData must name the surviving node.
	var dupTarget *TargetData
	for _, tgt := range targets {
		if tgt.Name == "dup" {
			dupTarget = tgt
		}
	}
	if dupTarget == nil {
		t.Fatal("missing dup target")
	}
	if dupTarget.Node != canonical {
		t.Errorf("dup target node = %v, want canonical %v", dupTarget.Node, canonical)
	}
}

// TestRegisterTargetsRejectsSourceFileWithDependencies guards spec.md
// §4.D's "SourceFiles must have zero dependencies" invariant: a SourceFile
// that somehow acquired a dependency (a graph-construction bug, never a
// legitimate state) must fail registration with ErrMalformedSourceFile
// instead of silently propagating targets through the bogus edge.
func TestRegisterTargetsRejectsSourceFileWithDependencies(t *testing.T) {
	g := NewGraph(nil, nil)
	malformed, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "malformed"))
	other, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "other"))
	if err := g.AddDependency(malformed, other, ""); err != nil {
		t.Fatal(err)
	}

	if err := g.RegisterTarget("bad", malformed); err != nil {
		t.Fatal(err)
	}
	if _, err := g.RegisterTargets([]string{"bad"}); !errors.Is(err, ErrMalformedSourceFile) {
		t.Fatalf("RegisterTargets = %v, want ErrMalformedSourceFile", err)
	}
}

func TestFixedPointDescentStopsOnAlreadyMarkedNode(t *testing.T) {
	// A diamond: top depends (via an Application, since SourceFiles must
	// have zero dependencies per spec.md §4.D) on shared twice through two
	// intermediate Applications, so propagateTargetLocked must not
	// double-visit shared's subtree.
	g := NewGraph(nil, nil)
	shared, _ := g.NewSourceFile(filepath.Join(t.TempDir(), "shared"))
	b1 := g.NewBuilder(nopBuilder{})
	b2 := g.NewBuilder(nopBuilder{})
	_, out1, err := g.NewApplication(b1, []NodeID{shared}, []string{"o1"})
	if err != nil {
		t.Fatal(err)
	}
	_, out2, err := g.NewApplication(b2, []NodeID{shared}, []string{"o2"})
	if err != nil {
		t.Fatal(err)
	}
	topBuilder := g.NewBuilder(nopBuilder{})
	top, _, err := g.NewApplication(topBuilder, []NodeID{out1[0], out2[0]}, []string{"top-out"})
	if err != nil {
		t.Fatal(err)
	}

	if err := g.RegisterTarget("top", top); err != nil {
		t.Fatal(err)
	}
	if _, err := g.RegisterTargets([]string{"top"}); err != nil {
		t.Fatal(err)
	}

	if got := g.Targets(shared); len(got) != 1 {
		t.Errorf("Targets(shared) = %v, want exactly one membership despite two paths", got)
	}
}
