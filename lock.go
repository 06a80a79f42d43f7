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
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFilename is the advisory lock kiln takes on a build directory for
// the duration of a build, so two kiln processes never run the same
// build's cache mutations concurrently.
const lockFilename = "kiln.lock"

// BuildLock is an advisory, cross-process lock over a single build
// directory.
type BuildLock struct {
	fl *flock.Flock
}

// NewBuildLock creates (but does not acquire) a lock over buildDirectory.
func NewBuildLock(buildDirectory string) *BuildLock {
	return &BuildLock{fl: flock.New(filepath.Join(buildDirectory, lockFilename))}
}

// TryLock attempts to acquire the lock without blocking. ok is false if
// another process currently holds it.
func (l *BuildLock) TryLock() (ok bool, err error) {
	ok, err = l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("kiln: acquiring build lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock. Safe to call even if TryLock never succeeded.
func (l *BuildLock) Unlock() error {
	return l.fl.Unlock()
}
