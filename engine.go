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
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// headNodeID is the virtual head of the plan: it depends on every affected
// target the caller asked to build, and nothing depends on it.
// Phase 1 counts it down like any other node so "the whole build is done"
// falls out of the same blocker-counting machinery as everything else,
// rather than needing a special case in Phase 2.
const headNodeID NodeID = invalidNodeID

// planNode is Phase 1's per-node bookkeeping: how many of its affected
// dependencies are still outstanding, and who to notify when it finishes.
type planNode struct {
	id         NodeID
	blockers   int
	dependents []NodeID
}

// plan is the output of Phase 1: the set of nodes actually affected by
// this build (the rest need no work at all) plus the subset that's
// immediately runnable.
type plan struct {
	nodes map[NodeID]*planNode
	ready []NodeID
}

// Engine runs the two-phase traversal of spec.md §4.E over a Graph:
// Phase 1 is a single-threaded reachability/blocker-counting pass from the
// requested targets; Phase 2 drains the resulting ready queue with a
// bounded worker pool, submitting each node's dependents the moment its
// last outstanding blocker clears.
type Engine struct {
	graph       *Graph
	concurrency int
}

// NewEngine creates an Engine over graph with the given worker
// concurrency. concurrency <= 0 means 1 (serial).
func NewEngine(graph *Graph, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Engine{graph: graph, concurrency: concurrency}
}

// Build runs every Application transitively affected by a dirty node
// reachable from targets. It does not publish outputs; callers do that
// separately with PublishTargets. It returns the
// first error observed by any node's Update, if any; per spec.md §5,
// in-flight work is allowed to drain before Build returns.
func (e *Engine) Build(ctx context.Context, kctx *Context, targets []*TargetData) error {
	nodeIDs := make([]NodeID, len(targets))
	for i, t := range targets {
		nodeIDs[i] = t.Node
	}

	p := e.plan(nodeIDs)
	kctx.Progress.SetTotal(len(p.nodes) - 1) // exclude the virtual head

	err := e.run(ctx, kctx, p)
	kctx.Progress.Finish(err)
	return err
}

// plan is Phase 1: a single-threaded depth-first post-order walk that
// computes, for every node
// reachable from targets, whether it's affected (itself dirty, or
// depending on something affected) and how many affected dependencies it
// is still blocked on.
func (e *Engine) plan(targets []NodeID) *plan {
	g := e.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	// Post-order over the full dependency closure of targets, so every
	// dependency is visited (and its affected-ness decided) before the
	// node that depends on it.
	order := g.postOrderLocked(targets)

	affected := map[NodeID]bool{}
	for _, id := range order {
		n := g.slot(id)
		isAffected := n.dirty
		if isAffected {
			Explain(g.log, id, "marked dirty directly")
		} else {
			for dep := range n.deps {
				if affected[dep] {
					isAffected = true
					Explain(g.log, id, "depends on affected node", zap.Uint32("dependency", uint32(dep)))
					break
				}
			}
		}
		affected[id] = isAffected
	}

	nodes := map[NodeID]*planNode{headNodeID: {id: headNodeID}}
	for _, id := range order {
		if !affected[id] {
			continue
		}
		pn := &planNode{id: id}
		for dep := range g.slot(id).deps {
			if affected[dep] {
				pn.blockers++
				nodes[dep].dependents = append(nodes[dep].dependents, id)
			}
		}
		nodes[id] = pn
	}

	head := nodes[headNodeID]
	seenTarget := map[NodeID]bool{}
	for _, t := range targets {
		if seenTarget[t] || !affected[t] {
			continue
		}
		seenTarget[t] = true
		head.blockers++
		nodes[t].dependents = append(nodes[t].dependents, headNodeID)
	}

	var ready []NodeID
	for id, pn := range nodes {
		if id != headNodeID && pn.blockers == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	return &plan{nodes: nodes, ready: ready}
}

// postOrderLocked returns every node in the transitive dependency closure
// of roots, dependencies before dependents, each exactly once.
func (g *Graph) postOrderLocked(roots []NodeID) []NodeID {
	visited := map[NodeID]bool{}
	var order []NodeID
	var visit func(NodeID)
	visit = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := make([]NodeID, 0, len(g.slot(id).deps))
		for d := range g.slot(id).deps {
			deps = append(deps, d)
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, d := range deps {
			visit(d)
		}
		order = append(order, id)
	}
	for _, r := range roots {
		visit(r)
	}
	return order
}

// run is Phase 2: a bounded worker pool that drains p's ready queue,
// applying each node's Update and, on success, decrementing its
// dependents' blocker counts — submitting any that reach zero.
func (e *Engine) run(ctx context.Context, kctx *Context, p *plan) error {
	grp, gctx := errgroup.WithContext(ctx)
	// Concurrency is bounded by sem rather than grp.SetLimit: a task submits
	// its dependents from inside its own grp.Go callback, and with SetLimit
	// that nested Go would wait for a slot the submitting task still holds.
	sem := make(chan struct{}, e.concurrency)

	var mu sync.Mutex
	var submit func(id NodeID)

	submit = func(id NodeID) {
		grp.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if kctx.Stopped() {
				return ErrCancelled
			}

			if err := e.applyOne(gctx, kctx, id); err != nil {
				kctx.recordFailure(err)
				return err
			}

			mu.Lock()
			var toSubmit []NodeID
			for _, dep := range p.nodes[id].dependents {
				dn := p.nodes[dep]
				dn.blockers--
				if dn.blockers == 0 && dep != headNodeID {
					toSubmit = append(toSubmit, dep)
				}
			}
			mu.Unlock()

			for _, next := range toSubmit {
				submit(next)
			}
			return nil
		})
	}

	for _, id := range p.ready {
		submit(id)
	}

	return grp.Wait()
}

// applyOne runs Update for a single planned node. Only Application nodes
// have nontrivial Update behavior (spec.md §4.C); the rest are no-ops that
// exist purely to carry blocker-count bookkeeping.
func (e *Engine) applyOne(ctx context.Context, kctx *Context, id NodeID) error {
	switch e.graph.Kind(id) {
	case KindApplication:
		return e.graph.UpdateApplication(ctx, kctx, id)
	default:
		return nil
	}
}
