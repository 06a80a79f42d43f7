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

// Package builtin holds the handful of trivial kiln.Builder
// implementations shipped with the CLI to exercise the engine end to end.
// None of these is a "concrete builder implementation" in the sense the
// engine's design excludes — a real compiler/linker driver is for
// downstream code to supply — they exist only so `kiln build` has
// something to run out of the box.
package builtin

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"github.com/kiln-build/kiln"
)

// Concat writes the concatenation of its inputs, in order, to its single
// output. It has no parameters, so its Hash is constant: any two Concat
// instances are interchangeable as far as the cache is concerned.
type Concat struct{}

var _ kiln.Builder = Concat{}

func (Concat) Hash() kiln.FullHash {
	return kiln.HashIterable([]any{"builtin.Concat"})
}

func (Concat) OutputCount(nInputs int) int {
	return 1
}

func (Concat) Build(ctx context.Context, kctx *kiln.Context, inputPaths, outputPaths []string) ([]string, error) {
	if len(outputPaths) != 1 {
		return nil, fmt.Errorf("builtin.Concat: expected exactly one output, got %d", len(outputPaths))
	}
	out, err := os.Create(outputPaths[0])
	if err != nil {
		return nil, err
	}
	defer out.Close()

	for _, p := range inputPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// HashFile is a thin convenience re-export so downstream builders outside
// this module don't need to import kiln just to fingerprint a file the
// same way the engine does.
func HashFile(path string) ([sha1.Size]byte, error) {
	return kiln.HashFile(path)
}
