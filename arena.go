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

// NodeID is a stable handle into a Graph's node arena. Dependency edges are
// expressed as sets of NodeID rather than pointers: the forward/reverse
// edge sets between nodes would otherwise form ownership cycles that Go,
// lacking weak references, has no clean way to break. The arena is the
// sole owner of node storage; everything else addresses nodes by handle.
type NodeID uint32

// invalidNodeID is a handle that never names a real arena slot. The engine
// uses it as the plan's virtual head (headNodeID); node fields never hold
// it (an Application with no implicit dependencies computed yet uses nil).
const invalidNodeID NodeID = 1<<32 - 1

// Kind is the closed set of node variants spec.md §3 describes. Dispatch
// over Kind happens through switch statements (see Graph.Hash in
// application.go)
// rather than an open interface hierarchy, since the set can never grow
// without a corresponding engine-side change anyway.
type Kind uint8

const (
	KindSourceFile Kind = iota
	KindBuilder
	KindApplication
	KindGeneratedFile
)

func (k Kind) String() string {
	switch k {
	case KindSourceFile:
		return "SourceFile"
	case KindBuilder:
		return "Builder"
	case KindApplication:
		return "Application"
	case KindGeneratedFile:
		return "GeneratedFile"
	default:
		return "Unknown"
	}
}

// node is the arena slot for one graph node. Only the fields relevant to
// its Kind are populated; the common fields (deps, targets, dirty) apply
// to every variant.
type node struct {
	kind Kind

	// forward dependency set: nodes this node directly depends on.
	deps map[NodeID]struct{}
	// named subset of deps, for builders that reference inputs by role.
	namedDeps map[string]NodeID
	// reverse dependency set: nodes that directly depend on this node.
	revDeps map[NodeID]struct{}

	// targets transitively reachable from this node by following reverse
	// edges forward from it (i.e. the target-membership invariant of
	// spec.md §3: for every target T reachable via reverse edges from N,
	// T is in this set).
	targets map[NodeID]struct{}

	dirty bool

	// --- SourceFile ---
	path string

	// --- Builder ---
	builderImpl Builder

	// --- Application ---
	builderNode  NodeID
	inputs       []NodeID
	outputs      []NodeID
	implicitDeps []NodeID // nil = not yet computed, distinct from empty-but-set
	implicitSet  bool

	// --- GeneratedFile ---
	application NodeID
	index       int
	name        string
}

func newNodeSlot(kind Kind) *node {
	return &node{
		kind:    kind,
		deps:    map[NodeID]struct{}{},
		revDeps: map[NodeID]struct{}{},
		targets: map[NodeID]struct{}{},
		dirty:   true,
	}
}
