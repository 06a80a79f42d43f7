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

import "testing"

func TestBuildLockExclusive(t *testing.T) {
	dir := t.TempDir()
	a := NewBuildLock(dir)
	b := NewBuildLock(dir)

	ok, err := a.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first TryLock should succeed")
	}

	ok, err = b.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second TryLock on the same directory should fail while the first holds it")
	}

	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}

	ok, err = b.TryLock()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("TryLock should succeed once the prior holder unlocks")
	}
	if err := b.Unlock(); err != nil {
		t.Fatal(err)
	}
}

func TestBuildLockUnlockWithoutLockIsSafe(t *testing.T) {
	l := NewBuildLock(t.TempDir())
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock without a prior TryLock should be safe, got %v", err)
	}
}
