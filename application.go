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

	"go.uber.org/zap"
)

// Hash computes a node's fingerprint, dispatching on Kind. For an
// Application this is the Full fingerprint (spec.md §3): it folds in
// whatever implicit dependencies have been resolved so far, or the
// "not yet computed" sentinel if none have.
func (g *Graph) Hash(id NodeID) (FullHash, error) {
	g.mu.Lock()
	n := g.slot(id)
	kind := n.kind
	g.mu.Unlock()

	switch kind {
	case KindSourceFile:
		return g.sourceFileHash(id)
	case KindBuilder:
		g.mu.Lock()
		impl := n.builderImpl
		g.mu.Unlock()
		return impl.Hash(), nil
	case KindApplication:
		return g.applicationHash(id)
	case KindGeneratedFile:
		return g.generatedFileHash(id)
	default:
		return FullHash{}, fmt.Errorf("kiln: unknown node kind %v", kind)
	}
}

func (g *Graph) sourceFileHash(id NodeID) (FullHash, error) {
	g.mu.Lock()
	path := g.slot(id).path
	g.mu.Unlock()

	v, err, _ := g.hashGroup.Do(path, func() (any, error) {
		return HashFile(path)
	})
	if err != nil {
		return FullHash{}, err
	}
	return FullHash(v.([20]byte)), nil
}

// PartialHash computes the Application's cache-lookup key: the same
// inputs as the Full hash, but with a sentinel in place of implicit
// dependencies rather than their actual hashes.
func (g *Graph) PartialHash(id NodeID) (PartialHash, error) {
	full, err := g.applicationHashWith(id, false)
	return PartialHash(full), err
}

func (g *Graph) applicationHash(id NodeID) (FullHash, error) {
	return g.applicationHashWith(id, true)
}

func (g *Graph) applicationHashWith(id NodeID, includeImplicit bool) (FullHash, error) {
	g.mu.Lock()
	n := g.slot(id)
	if n.kind != KindApplication {
		g.mu.Unlock()
		return FullHash{}, fmt.Errorf("kiln: applicationHash called on %s node", n.kind)
	}
	builderID := n.builderNode
	inputs := append([]NodeID(nil), n.inputs...)
	var implicit []NodeID
	implicitSet := n.implicitSet
	if includeImplicit && implicitSet {
		implicit = append([]NodeID(nil), n.implicitDeps...)
	}
	g.mu.Unlock()

	builderHash, err := g.Hash(builderID)
	if err != nil {
		return FullHash{}, err
	}
	inputHashes := make([][20]byte, len(inputs))
	for i, in := range inputs {
		h, err := g.Hash(in)
		if err != nil {
			return FullHash{}, err
		}
		inputHashes[i] = h
	}

	var implicitPart []any
	if includeImplicit && implicitSet {
		implicitHashes := make([][20]byte, len(implicit))
		for i, dep := range implicit {
			h, err := g.Hash(dep)
			if err != nil {
				return FullHash{}, err
			}
			implicitHashes[i] = h
		}
		implicitPart = hashes(implicitHashes...)
	} else {
		// Sentinel: stable regardless of actual implicit deps, so this is
		// the partial fingerprint used as the cache lookup key.
		implicitPart = []any{"\x00no-implicit-deps\x00"}
	}

	return HashIterable(
		strs("Application"),
		hashes(builderHash),
		hashes(inputHashes...),
		implicitPart,
	), nil
}

func (g *Graph) generatedFileHash(id NodeID) (FullHash, error) {
	g.mu.Lock()
	n := g.slot(id)
	appID, index, name := n.application, n.index, n.name
	g.mu.Unlock()

	appHash, err := g.Hash(appID)
	if err != nil {
		return FullHash{}, err
	}
	return HashIterable(
		strs("GeneratedFile"),
		hashes(appHash),
		[]any{fmt.Sprintf("%d", index), name},
	), nil
}

// GeneratedFilePath returns the path of a cached output: the cache
// directory for the owning Application's Full hash, joined with the
// output's display name. Requires the Application to have completed at
// least one successful Update (cache entry must exist).
func (g *Graph) GeneratedFilePath(id NodeID) (string, error) {
	g.mu.Lock()
	n := g.slot(id)
	appID, name := n.application, n.name
	g.mu.Unlock()

	full, err := g.Hash(appID)
	if err != nil {
		return "", err
	}
	return filepath.Join(g.cache.EntryDir(full), name), nil
}

// setImplicitDependenciesLocked replaces an Application's implicit
// dependency set, removing stale implicit edges first, per spec.md §4.C
// step 3 ("removing stale implicit edges first").
func (g *Graph) setImplicitDependenciesLocked(appID NodeID, deps []NodeID) error {
	app := g.slot(appID)
	if app.implicitSet {
		for _, old := range app.implicitDeps {
			if err := g.removeDependencyLocked(appID, old); err != nil {
				return err
			}
		}
	}
	app.implicitDeps = deps
	app.implicitSet = true
	for _, dep := range deps {
		if _, ok := app.deps[dep]; !ok {
			if err := g.addDependencyLocked(appID, dep, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// Accessed touches the cache entry backing this node, bubbling up to the
// owning Application for GeneratedFile nodes (their cache entry is the
// Application's). SourceFile and Builder nodes have no cache entry and
// Accessed is a no-op for them.
func (g *Graph) Accessed(id NodeID) error {
	g.mu.Lock()
	n := g.slot(id)
	kind := n.kind
	var target NodeID
	switch kind {
	case KindApplication:
		target = id
	case KindGeneratedFile:
		target = n.application
	default:
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	full, err := g.Hash(target)
	if err != nil {
		return err
	}
	return g.cache.Accessed(full)
}

// UpdateApplication implements the rehydrate-or-build protocol of spec.md
// §4.C for a single Application node. It is the only node Kind with
// nontrivial Update behavior; SourceFile/Builder/GeneratedFile nodes are
// no-ops (a SourceFile's "freshness" is expressed purely through its
// current hash, observed lazily by whoever compares against a stored one).
func (g *Graph) UpdateApplication(ctx context.Context, kctx *Context, id NodeID) (err error) {
	if kctx.Stopped() {
		return ErrCancelled
	}

	sw := NewStopwatch()
	defer kctx.Metrics.RecordUpdate(KindApplication, sw)
	kctx.Progress.Started(id)
	defer func() {
		if err != nil {
			kctx.Progress.Failed(id, err)
		}
	}()

	partial, err := g.PartialHash(id)
	if err != nil {
		return err
	}

	candidates, err := g.cache.GetCandidateImplicitDependencies(partial)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		deps, ok, err := g.tryRehydrate(candidate)
		if err != nil {
			return err
		}
		if ok {
			g.mu.Lock()
			if err := g.setImplicitDependenciesLocked(id, deps); err != nil {
				g.mu.Unlock()
				return err
			}
			g.mu.Unlock()

			full, err := g.Hash(id)
			if err != nil {
				return err
			}
			if err := g.cache.Accessed(full); err != nil {
				return err
			}
			if kctx.Stopped() {
				return ErrCancelled
			}
			kctx.Metrics.CacheHit()
			kctx.Progress.Completed(id)
			kctx.Logger.Debug("application cache hit", zap.String("application", fmt.Sprint(id)))
			return nil
		}
	}
	kctx.Metrics.CacheMiss()

	// Miss: no candidate's implicit deps matched current file contents.
	g.mu.Lock()
	app := g.slot(id)
	builderID := app.builderNode
	inputIDs := append([]NodeID(nil), app.inputs...)
	outputIDs := append([]NodeID(nil), app.outputs...)
	g.mu.Unlock()

	builderImpl := g.slot(builderID).builderImpl

	inputPaths := make([]string, len(inputIDs))
	for i, in := range inputIDs {
		p, err := g.pathOf(in)
		if err != nil {
			return err
		}
		inputPaths[i] = p
	}

	scratch, cleanup, err := kctx.TempDir()
	if err != nil {
		return err
	}
	defer cleanup()

	outputNames := make([]string, len(outputIDs))
	outputPaths := make([]string, len(outputIDs))
	for i, out := range outputIDs {
		name := g.GeneratedFileName(out)
		outputNames[i] = name
		outputPaths[i] = filepath.Join(scratch, name)
	}

	if kctx.Stopped() {
		return ErrCancelled
	}
	scanned, err := builderImpl.Build(ctx, kctx, inputPaths, outputPaths)
	if err != nil {
		return err
	}

	implicitDeps := make([]NodeID, 0, len(scanned))
	for _, p := range scanned {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("kiln: builder returned non-absolute implicit dependency path %q", p)
		}
		sfID, err := g.NewSourceFile(p)
		if err != nil {
			return err
		}
		implicitDeps = append(implicitDeps, sfID)
	}

	g.mu.Lock()
	if err := g.setImplicitDependenciesLocked(id, implicitDeps); err != nil {
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	implicitRecords := make([]ImplicitDep, len(implicitDeps))
	for i, dep := range implicitDeps {
		h, err := g.Hash(dep)
		if err != nil {
			return err
		}
		p, err := g.pathOf(dep)
		if err != nil {
			return err
		}
		implicitRecords[i] = ImplicitDep{Path: p, Hash: h}
	}

	full, err := g.Hash(id)
	if err != nil {
		return err
	}
	partial, err = g.PartialHash(id)
	if err != nil {
		return err
	}
	if err := g.cache.Put(full, partial, outputPaths, implicitRecords); err != nil {
		return err
	}
	if kctx.Stopped() {
		return ErrCancelled
	}

	for _, in := range inputIDs {
		if err := g.Accessed(in); err != nil {
			return err
		}
	}
	for _, dep := range implicitDeps {
		if err := g.Accessed(dep); err != nil {
			return err
		}
	}

	kctx.Metrics.NodeBuilt()
	kctx.Progress.Completed(id)
	kctx.Logger.Info("application built", zap.String("application", fmt.Sprint(id)), zap.Int("implicit_deps", len(implicitDeps)))
	return nil
}

// tryRehydrate attempts to match a candidate implicit-dependency set
// against the current content of the graph's source files. It returns the
// resolved node list and true on a full match; it stops at the first
// mismatch (spec.md §4.C step 2).
func (g *Graph) tryRehydrate(candidate []ImplicitDep) ([]NodeID, bool, error) {
	resolved := make([]NodeID, 0, len(candidate))
	for _, dep := range candidate {
		id, err := g.NewSourceFile(dep.Path)
		if err != nil {
			return nil, false, err
		}
		h, err := g.Hash(id)
		if err != nil {
			return nil, false, err
		}
		if h != dep.Hash {
			return nil, false, nil
		}
		resolved = append(resolved, id)
	}
	return resolved, true, nil
}

func (g *Graph) pathOf(id NodeID) (string, error) {
	g.mu.Lock()
	kind := g.slot(id).kind
	g.mu.Unlock()

	switch kind {
	case KindSourceFile:
		return g.Path(id), nil
	case KindGeneratedFile:
		return g.GeneratedFilePath(id)
	default:
		return "", fmt.Errorf("kiln: pathOf called on %s node", kind)
	}
}
