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
	"os"

	"github.com/kiln-build/kiln"
	"github.com/spf13/cobra"
)

var (
	repoPathFlag string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:     "kiln",
	Short:   "A content-addressed, incremental build engine",
	Version: kiln.Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kiln: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoPathFlag, "repo", ".", "path to the project root")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log to the console at the configured log_level (otherwise only warnings and errors)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
}
