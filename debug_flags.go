// Copyright 2012 Google Inc. All Rights Reserved.
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

import "go.uber.org/zap"

// explaining gates Explain's output, the same switch the original flips
// with -d explain: leave it off by default since walking the "why is this
// dirty" chain on every node is wasted work nobody asked for.
var explaining = false

// SetExplaining turns dirty-reason logging on or off for the process.
func SetExplaining(v bool) { explaining = v }

// Explain logs why a node is being rebuilt, when explaining is on. Phase 1
// of the engine calls this as it decides each node's affected-ness so a
// developer can answer "why did this rebuild" without instrumenting the
// graph by hand.
func Explain(log *zap.Logger, id NodeID, format string, args ...zap.Field) {
	if !explaining || log == nil {
		return
	}
	log.Debug("explain: "+format, append([]zap.Field{zap.Uint32("node", uint32(id))}, args...)...)
}
