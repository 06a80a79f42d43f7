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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kiln-build/kiln"
	"github.com/kiln-build/kiln/cmd/kiln/builtin"
	"github.com/kiln-build/kiln/internal/config"
	"github.com/kiln-build/kiln/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	manifestFlag    string
	concurrencyFlag int
	cacheSizeFlag   string
	publishDirFlag  string
	explainFlag     bool
	targetsFlag     []string
)

// manifestEntry is one named target in a build manifest: concatenate
// Inputs (relative to the manifest file) into a single output, published
// under Name.
type manifestEntry struct {
	Name   string   `json:"name"`
	Inputs []string `json:"inputs"`
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every target in a manifest file",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&manifestFlag, "manifest", "kiln.json", "path to the build manifest")
	buildCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "override configured worker concurrency (0 = use config)")
	buildCmd.Flags().StringVar(&cacheSizeFlag, "cache-size", "", "override configured cache size limit, e.g. 500MB")
	buildCmd.Flags().StringVar(&publishDirFlag, "publish-dir", "", "override configured publish directory")
	buildCmd.Flags().BoolVar(&explainFlag, "explain", false, "log why each node is considered out of date")
	buildCmd.Flags().StringSliceVar(&targetsFlag, "target", nil, "build only these targets (default: every target in the manifest)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	overrides := map[string]interface{}{}
	if concurrencyFlag != 0 {
		overrides["concurrency"] = concurrencyFlag
	}
	if cacheSizeFlag != "" {
		overrides["cache_size_limit"] = cacheSizeFlag
	}
	if publishDirFlag != "" {
		overrides["publish_dir"] = publishDirFlag
	}
	if explainFlag {
		overrides["explain"] = true
	}

	cfg, err := config.Load(repoPathFlag, overrides)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(cfg.BuildDirectory)
	if verboseFlag {
		logCfg.ConsoleLevel = logging.LevelFromString(cfg.LogLevel)
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	kiln.SetExplaining(cfg.Explain)

	lock := kiln.NewBuildLock(cfg.BuildDirectory)
	if err := os.MkdirAll(cfg.BuildDirectory, 0o755); err != nil {
		return err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("another kiln build is already running in %s", cfg.BuildDirectory)
	}
	defer lock.Unlock()

	cache := kiln.NewCache(cfg.CacheDirectory, cfg.CacheSizeLimit, logger)
	if err := cache.Load(); err != nil {
		return err
	}
	defer cache.Save()

	graph := kiln.NewGraph(cache, logger)
	manifestDir := filepath.Dir(manifestFlag)
	entries, err := loadManifest(manifestFlag)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		inputs := make([]kiln.NodeID, len(entry.Inputs))
		for i, p := range entry.Inputs {
			if !filepath.IsAbs(p) {
				p = filepath.Join(manifestDir, p)
			}
			id, err := graph.NewSourceFile(p)
			if err != nil {
				return err
			}
			inputs[i] = id
		}
		builderID := graph.NewBuilder(builtin.Concat{})
		appID, _, err := graph.NewApplication(builderID, inputs, []string{entry.Name})
		if err != nil {
			return err
		}
		if err := graph.RegisterTarget(entry.Name, appID); err != nil {
			return err
		}
		names = append(names, entry.Name)
	}

	wanted := names
	if len(targetsFlag) > 0 {
		wanted = targetsFlag
	}

	targets, err := graph.RegisterTargets(wanted)
	if err != nil {
		if errors.Is(err, kiln.ErrUnknownTarget) {
			for _, want := range wanted {
				if _, regErr := graph.RegisterTargets([]string{want}); regErr != nil {
					if suggestion := kiln.SuggestTarget(want, names); suggestion != "" {
						return fmt.Errorf("%w (did you mean %q?)", regErr, suggestion)
					}
				}
			}
		}
		return err
	}

	kctx, err := kiln.NewContext(cfg.BuildDirectory, cache, graph, logger)
	if err != nil {
		return err
	}

	printer := kiln.NewConsoleLinePrinter()
	status := kiln.NewConsoleStatus(printer)
	done := make(chan []string, 1)
	go func() { done <- status.Run(kctx.Progress.Events(), graph) }()

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	engine := kiln.NewEngine(graph, concurrency)

	buildErr := engine.Build(context.Background(), kctx, targets)
	failed := <-done

	if buildErr != nil {
		logger.Error("build failed", zap.Error(buildErr), zap.Strings("failed_targets", failed))
		return buildErr
	}

	if err := kiln.PublishTargets(graph, targets, cfg.PublishDir, cfg.BuildDirectory, logger); err != nil {
		return err
	}

	if err := cache.VerifyState(); err != nil {
		logger.Warn("cache failed post-build verification", zap.Error(err))
	}

	fmt.Printf("built %d target(s), published to %s\n", len(targets), cfg.PublishDir)
	return nil
}

func loadManifest(path string) ([]manifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kiln: reading manifest %s: %w", path, err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("kiln: parsing manifest %s: %w", path, err)
	}
	return entries, nil
}
