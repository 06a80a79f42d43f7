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
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// PublishTargets symlinks every registered target's outputs into
// publishDir under its target name, replacing whatever was there before.
// This is the counterpart to the original's backend._link_outputs /
// context._link_targets: the cache directories are content-addressed and
// unreadable by name, so a human (or a downstream tool) needs a stable
// path that always points at the current build's result.
//
// buildDir is the build's root directory (as passed to NewContext and
// NewCache). When publishDir sits under buildDir, the link target is made
// relative to publishDir so the published tree stays self-contained if the
// whole build directory is moved or copied; otherwise the link target is
// left absolute.
func PublishTargets(g *Graph, targets []*TargetData, publishDir, buildDir string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(publishDir, 0o755); err != nil {
		return err
	}

	for _, t := range targets {
		paths, err := targetOutputPaths(g, t.Node)
		if err != nil {
			return fmt.Errorf("kiln: publishing target %q: %w", t.Name, err)
		}

		for i, src := range paths {
			name := t.Name
			if len(paths) > 1 {
				name = fmt.Sprintf("%s.%d", t.Name, i)
			}
			link := filepath.Join(publishDir, name)
			if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
				return err
			}
			target, err := linkTarget(src, publishDir, buildDir)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, link); err != nil {
				return err
			}
			logger.Debug("published target", zap.String("target", t.Name), zap.String("link", link), zap.String("source", src))
		}
	}
	return nil
}

// linkTarget decides what path a published symlink should point at: a path
// relative to publishDir when publishDir is under buildDir (so the
// published tree keeps working if buildDir moves), or src unchanged
// otherwise.
func linkTarget(src, publishDir, buildDir string) (string, error) {
	if buildDir == "" {
		return src, nil
	}
	absBuildDir, err := filepath.Abs(buildDir)
	if err != nil {
		return src, nil
	}
	absPublishDir, err := filepath.Abs(publishDir)
	if err != nil {
		return src, nil
	}
	rel, err := filepath.Rel(absBuildDir, absPublishDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return src, nil
	}
	relTarget, err := filepath.Rel(absPublishDir, src)
	if err != nil {
		return src, nil
	}
	return relTarget, nil
}

// targetOutputPaths resolves a target node to the on-disk path(s) it
// ultimately represents: a SourceFile publishes its own path, a
// GeneratedFile publishes its single cached output, and an Application
// publishes every one of its outputs (registering the application itself,
// rather than one of its outputs, as a target is a convenience for "give
// me everything this produces").
func targetOutputPaths(g *Graph, id NodeID) ([]string, error) {
	switch g.Kind(id) {
	case KindSourceFile:
		return []string{g.Path(id)}, nil
	case KindGeneratedFile:
		p, err := g.GeneratedFilePath(id)
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	case KindApplication:
		g.mu.Lock()
		outputs := append([]NodeID(nil), g.slot(id).outputs...)
		g.mu.Unlock()
		paths := make([]string, len(outputs))
		for i, out := range outputs {
			p, err := g.GeneratedFilePath(out)
			if err != nil {
				return nil, err
			}
			paths[i] = p
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("kiln: target node has no publishable output")
	}
}
