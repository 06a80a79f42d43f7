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
	"fmt"

	"github.com/kiln-build/kiln"
	"github.com/kiln-build/kiln/internal/config"
	"github.com/kiln-build/kiln/internal/logging"
	"github.com/spf13/cobra"
)

var deleteDirectoryFlag bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Discard the build cache",
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&deleteDirectoryFlag, "delete-directory", false, "also remove the cache directory and its files; without this flag the files on disk are left in place")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(repoPathFlag, nil)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(cfg.BuildDirectory)
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cache := kiln.NewCache(cfg.CacheDirectory, cfg.CacheSizeLimit, logger)
	if err := cache.Load(); err != nil {
		return err
	}
	if err := cache.Clear(deleteDirectoryFlag); err != nil {
		return err
	}

	fmt.Printf("cleaned cache at %s\n", cfg.CacheDirectory)
	return nil
}
