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
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Builder is the contract a concrete build-step implementation (a compiler
// driver, a linker, ...) must satisfy. The engine never constructs a
// Builder; user code does and hands it to Graph.NewApplication. Per
// spec.md §1 and §6, concrete builders are an external collaborator: kiln
// only depends on this interface.
type Builder interface {
	// Hash must be pure: it changes if and only if some semantic change was
	// made to the builder's class or its static parameters.
	Hash() FullHash
	// OutputCount returns how many outputs this builder produces given
	// nInputs inputs.
	OutputCount(nInputs int) int
	// Build must write exactly the requested outputPaths, must not modify
	// inputPaths, and returns the absolute paths of every file it read
	// beyond the explicit inputs (its "implicit"/scanned dependencies).
	Build(ctx context.Context, kctx *Context, inputPaths, outputPaths []string) ([]string, error)
}

// Graph owns the node arena and every dependency edge between its nodes.
// A single mutex guards structural mutation (edges, target membership,
// the file index) per spec.md §5; the heavier I/O done inside a Builder's
// Build runs outside this lock.
type Graph struct {
	mu    sync.Mutex
	slots []*node

	fileIndex map[string]NodeID // absolute path -> SourceFile NodeID

	targetNames map[string]NodeID // registered target name -> node
	targetOrder []string          // registration order, for the nil-names case

	cache *Cache
	log   *zap.Logger

	// dedupes concurrent rehydration attempts that stat the same path.
	hashGroup singleflight.Group
}

// NewGraph creates an empty graph backed by the given cache. logger may be
// nil, in which case a no-op logger is used.
func NewGraph(cache *Cache, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		fileIndex: map[string]NodeID{},
		cache:     cache,
		log:       logger,
	}
}

func (g *Graph) slot(id NodeID) *node {
	return g.slots[id]
}

func (g *Graph) newNode(kind Kind) NodeID {
	id := NodeID(len(g.slots))
	g.slots = append(g.slots, newNodeSlot(kind))
	return id
}

// Kind returns the node variant for id.
func (g *Graph) Kind(id NodeID) Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot(id).kind
}

// Path returns the SourceFile's absolute path. Panics for other kinds.
func (g *Graph) Path(id NodeID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.slot(id)
	if n.kind != KindSourceFile {
		panic(fmt.Sprintf("kiln: Path called on %s node", n.kind))
	}
	return n.path
}

// IsDirty reports the node's dirty flag.
func (g *Graph) IsDirty(id NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot(id).dirty
}

// SetDirty marks a node dirty or clean.
func (g *Graph) SetDirty(id NodeID, dirty bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slot(id).dirty = dirty
}

// Targets returns the set of target NodeIDs that transitively depend on id,
// per the target-membership invariant of spec.md §3.
func (g *Graph) Targets(id NodeID) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]NodeID, 0, len(g.slot(id).targets))
	for t := range g.slot(id).targets {
		out = append(out, t)
	}
	return out
}

// ReverseDependencies returns the set of nodes that directly depend on id.
func (g *Graph) ReverseDependencies(id NodeID) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.slot(id)
	out := make([]NodeID, 0, len(n.revDeps))
	for r := range n.revDeps {
		out = append(out, r)
	}
	return out
}

// Dependencies returns the set of nodes id directly depends on.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.slot(id)
	out := make([]NodeID, 0, len(n.deps))
	for d := range n.deps {
		out = append(out, d)
	}
	return out
}

// AddDependency records that `from` depends on `to`. It is a programmer
// error (ErrDependencyAlreadyExists) to add an edge twice. Caller must
// hold no other lock; AddDependency takes the graph mutex itself.
func (g *Graph) AddDependency(from, to NodeID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addDependencyLocked(from, to, name)
}

func (g *Graph) addDependencyLocked(from, to NodeID, name string) error {
	f := g.slot(from)
	if _, ok := f.deps[to]; ok {
		return ErrDependencyAlreadyExists
	}
	if name != "" {
		if f.namedDeps == nil {
			f.namedDeps = map[string]NodeID{}
		}
		if _, ok := f.namedDeps[name]; ok {
			return ErrDependencyAlreadyExists
		}
		f.namedDeps[name] = to
	}
	f.deps[to] = struct{}{}
	g.slot(to).revDeps[from] = struct{}{}
	return nil
}

// RemoveDependency reverses AddDependency atomically, keeping the named-
// dependency alias map consistent.
func (g *Graph) RemoveDependency(from, to NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeDependencyLocked(from, to)
}

func (g *Graph) removeDependencyLocked(from, to NodeID) error {
	f := g.slot(from)
	if _, ok := f.deps[to]; !ok {
		return ErrDependencyMissing
	}
	delete(f.deps, to)
	for k, v := range f.namedDeps {
		if v == to {
			delete(f.namedDeps, k)
			break
		}
	}
	delete(g.slot(to).revDeps, from)
	return nil
}

// NewSourceFile returns the NodeID for path, creating one if this is the
// first reference. Two calls with the same (cleaned, absolute) path always
// return the same NodeID: spec.md §3's SourceFile-merge invariant.
func (g *Graph) NewSourceFile(path string) (NodeID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	abs = filepath.Clean(abs)

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fileByPathLocked(abs), nil
}

func (g *Graph) fileByPathLocked(absPath string) NodeID {
	if id, ok := g.fileIndex[absPath]; ok {
		return id
	}
	id := g.newNode(KindSourceFile)
	g.slot(id).path = absPath
	g.fileIndex[absPath] = id
	return id
}

// NewUnmergedSourceFile creates a SourceFile node for path without
// consulting or updating the shared file index. It exists so callers that
// build up subgraphs independently (as spec.md §4.D's merge scenario
// describes) can construct two distinct node instances for the same path;
// RegisterTargets is what reconciles them into one canonical instance.
// Most callers want NewSourceFile instead.
func (g *Graph) NewUnmergedSourceFile(path string) (NodeID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	abs = filepath.Clean(abs)

	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.newNode(KindSourceFile)
	g.slot(id).path = abs
	return id, nil
}

// NewBuilder wraps a user-supplied Builder implementation in a graph node.
func (g *Graph) NewBuilder(impl Builder) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.newNode(KindBuilder)
	g.slot(id).builderImpl = impl
	return id
}

// NewApplication binds builderID to inputs, allocating OutputCount(len(inputs))
// GeneratedFile outputs with the given display names (entries may be "" to
// request an auto-generated name). It returns the Application NodeID and the
// NodeIDs of its outputs, in order.
func (g *Graph) NewApplication(builderID NodeID, inputs []NodeID, outputNames []string) (NodeID, []NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.slot(builderID)
	if b.kind != KindBuilder {
		return 0, nil, fmt.Errorf("kiln: NewApplication builderID is not a Builder node")
	}
	if want := b.builderImpl.OutputCount(len(inputs)); want != len(outputNames) {
		return 0, nil, fmt.Errorf("kiln: builder produces %d outputs for %d inputs, got %d output names", want, len(inputs), len(outputNames))
	}

	appID := g.newNode(KindApplication)
	app := g.slot(appID)
	app.builderNode = builderID
	app.inputs = append([]NodeID(nil), inputs...)

	if err := g.addDependencyLocked(appID, builderID, ""); err != nil {
		return 0, nil, err
	}
	for _, in := range inputs {
		if err := g.addDependencyLocked(appID, in, ""); err != nil {
			return 0, nil, err
		}
	}

	outs := make([]NodeID, len(outputNames))
	for i, name := range outputNames {
		if name == "" {
			name = fmt.Sprintf("output%02d", i)
		}
		outID := g.newNode(KindGeneratedFile)
		out := g.slot(outID)
		out.application = appID
		out.index = i
		out.name = name
		if err := g.addDependencyLocked(outID, appID, ""); err != nil {
			return 0, nil, err
		}
		outs[i] = outID
		app.outputs = append(app.outputs, outID)
	}

	return appID, outs, nil
}

// GeneratedFileName returns the display name of a GeneratedFile node.
func (g *Graph) GeneratedFileName(id NodeID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot(id).name
}

// ApplicationOf returns the owning Application of a GeneratedFile.
func (g *Graph) ApplicationOf(id NodeID) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot(id).application
}
