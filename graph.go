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
	"fmt"
	"sort"
)

// TargetData is the resolved description of one registered target: its
// name and its canonical node. It is returned only once the target has
// been propagated to every node it depends on, under the graph lock, so
// workers never observe a target mid-registration. The membership sets
// themselves live on the nodes, not in TargetData.
type TargetData struct {
	Name string
	Node NodeID
}

// RegisterTarget names node as a build target. Registering the same name
// to the same node twice is a no-op; registering it to a different node is
// an error (spec.md §3's target-membership invariant assumes a name
// denotes exactly one node for the lifetime of the graph).
func (g *Graph) RegisterTarget(name string, node NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.targetNames[name]; ok {
		if existing != node {
			return fmt.Errorf("kiln: target %q already registered to a different node", name)
		}
		return nil
	}
	if g.targetNames == nil {
		g.targetNames = map[string]NodeID{}
	}
	g.targetNames[name] = node
	g.targetOrder = append(g.targetOrder, name)
	return nil
}

// RegisterTargets resolves names into fully-propagated TargetData. A nil
// names slice means "every target registered so far" (spec.md §9's
// resolution of the target_names==None open question), in registration
// order.
func (g *Graph) RegisterTargets(names []string) ([]*TargetData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if names == nil {
		names = append([]string(nil), g.targetOrder...)
	}

	out := make([]*TargetData, 0, len(names))
	for _, name := range names {
		node, ok := g.targetNames[name]
		if !ok {
			return nil, fmt.Errorf("kiln: %w: %q", ErrUnknownTarget, name)
		}
		node, err := g.propagateTargetLocked(node, node)
		if err != nil {
			return nil, fmt.Errorf("kiln: registering target %q: %w", name, err)
		}
		out = append(out, &TargetData{Name: name, Node: node})
	}
	return out, nil
}

// propagateTargetLocked marks target as reachable from node (and from
// everything node transitively depends on), merging any duplicate
// SourceFile nodes it encounters along the way by canonicalizing them
// through fileByPathLocked. It returns the canonical NodeID for node
// itself, since node may be a SourceFile duplicate that gets merged away
// as part of this very call (the "duplicate is the target itself" edge
// case: a target can be its own merge victim, and the caller must record
// TargetData against the surviving canonical node, not the stale one).
//
// Descent stops the moment target is already present in a node's targets
// set: every node has a fixed, finite dependency count, so re-adding the
// same target to an already-marked node would otherwise walk the shared
// portion of the graph once per incoming edge instead of once overall.
func (g *Graph) propagateTargetLocked(node, target NodeID) (NodeID, error) {
	canon, err := g.canonicalizeLocked(node)
	if err != nil {
		return 0, err
	}
	n := g.slot(canon)
	if _, already := n.targets[target]; already {
		return canon, nil
	}
	n.targets[target] = struct{}{}

	for dep := range n.deps {
		if _, err := g.propagateTargetLocked(dep, target); err != nil {
			return 0, err
		}
	}
	return canon, nil
}

// canonicalizeLocked returns the canonical node for id, merging id into
// the shared instance if id is a SourceFile duplicate: every reverse edge
// pointing at id is rewritten to point at the canonical node instead, and
// id is left as an orphan (unreachable, so it plays no further part in any
// traversal).
//
// Per spec.md §4.D, a SourceFile must have zero dependencies; one that
// doesn't means the graph was built incorrectly (a dependency was added to
// a SourceFile node instead of to the Application that consumes it), so
// canonicalizeLocked refuses to merge it and reports ErrMalformedSourceFile
// rather than silently propagating a target through bogus edges.
func (g *Graph) canonicalizeLocked(id NodeID) (NodeID, error) {
	n := g.slot(id)
	if n.kind != KindSourceFile {
		return id, nil
	}
	if len(n.deps) != 0 {
		return 0, fmt.Errorf("%w: source file %q has %d dependencies, want 0", ErrMalformedSourceFile, n.path, len(n.deps))
	}
	canon := g.fileByPathLocked(n.path)
	if canon == id {
		return id, nil
	}

	for rev := range n.revDeps {
		revNode := g.slot(rev)
		delete(revNode.deps, id)
		for k, v := range revNode.namedDeps {
			if v == id {
				revNode.namedDeps[k] = canon
			}
		}
		revNode.deps[canon] = struct{}{}
		g.slot(canon).revDeps[rev] = struct{}{}
	}
	n.revDeps = map[NodeID]struct{}{}
	return canon, nil
}

// TargetNames returns every registered target name, in registration order.
func (g *Graph) TargetNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.targetOrder...)
}

// sortedDirtyReachable returns, in a stable order, every node reachable
// from target's dependency set that is currently marked dirty. Engine.plan
// does not use it; Phase 1 decides affected-ness from its own post-order
// walk.
func (g *Graph) sortedDirtyReachable(target NodeID) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := map[NodeID]struct{}{}
	var dirty []NodeID
	var walk func(NodeID)
	walk = func(id NodeID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		n := g.slot(id)
		if n.dirty {
			dirty = append(dirty, id)
		}
		deps := make([]NodeID, 0, len(n.deps))
		for d := range n.deps {
			deps = append(deps, d)
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, d := range deps {
			walk(d)
		}
	}
	walk(target)
	sort.Slice(dirty, func(i, j int) bool { return dirty[i] < dirty[j] })
	return dirty
}
