// Copyright 2013 Google Inc. All Rights Reserved.
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

// Version is the current kiln release. There is no wire-format version
// negotiation to speak of, unlike the original's ninja_required_version:
// the graph is built programmatically against this package, not parsed
// from a versioned manifest file, so compatibility is just "which module
// version is imported."
const Version = "0.1.0"
