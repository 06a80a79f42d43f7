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

// Package config loads kiln's build settings from, in increasing order of
// precedence: built-in defaults, a user file at ~/.kilnrc.yaml, a project
// file at <repo>/.kiln/config.yaml, the environment (KILN_-prefixed), and
// finally CLI flag overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BuildConfig holds every setting a `kiln build` invocation needs.
type BuildConfig struct {
	BuildDirectory string
	CacheDirectory string
	CacheSizeLimit int64
	Concurrency    int
	PublishDir     string
	LogLevel       string
	Explain        bool
}

// Load resolves a BuildConfig for repoPath, applying cliOverrides last.
// Recognized override keys mirror the YAML schema: "build_directory",
// "cache_directory", "cache_size_limit" (a humanize-style size string,
// e.g. "500MB"), "concurrency", "publish_dir", "log_level", "explain".
func Load(repoPath string, cliOverrides map[string]interface{}) (*BuildConfig, error) {
	_ = godotenv.Load(filepath.Join(repoPath, ".env"))

	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("KILN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("build_directory", filepath.Join(repoPath, ".kiln-build"))
	v.SetDefault("cache_directory", filepath.Join(repoPath, ".kiln-build", "cache"))
	v.SetDefault("cache_size_limit", "1GB")
	v.SetDefault("concurrency", 0)
	v.SetDefault("publish_dir", filepath.Join(repoPath, "out"))
	v.SetDefault("log_level", "info")
	v.SetDefault("explain", false)

	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, ".kilnrc.yaml")
		if _, err := os.Stat(global); err == nil {
			v.SetConfigFile(global)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("kiln: reading %s: %w", global, err)
			}
		}
	}

	project := filepath.Join(repoPath, ".kiln", "config.yaml")
	if _, err := os.Stat(project); err == nil {
		v.SetConfigFile(project)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("kiln: reading %s: %w", project, err)
		}
	}

	for key, val := range cliOverrides {
		if val != nil {
			v.Set(key, val)
		}
	}

	sizeLimit, err := humanize.ParseBytes(v.GetString("cache_size_limit"))
	if err != nil {
		return nil, fmt.Errorf("kiln: invalid cache_size_limit %q: %w", v.GetString("cache_size_limit"), err)
	}

	return &BuildConfig{
		BuildDirectory: v.GetString("build_directory"),
		CacheDirectory: v.GetString("cache_directory"),
		CacheSizeLimit: int64(sizeLimit),
		Concurrency:    v.GetInt("concurrency"),
		PublishDir:     v.GetString("publish_dir"),
		LogLevel:       v.GetString("log_level"),
		Explain:        v.GetBool("explain"),
	}, nil
}
