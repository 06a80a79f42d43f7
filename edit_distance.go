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

// editDistance computes the Levenshtein distance between s1 and s2,
// capped at maxEditDistance+1 once no row can possibly do better (the
// early-exit the original uses to keep this cheap when scanning a whole
// target list for the one plausible typo).
//
// The algorithm implemented below is the "classic" dynamic-programming
// algorithm for computing the Levenshtein distance, which is described
// here: http://en.wikipedia.org/wiki/LevenshteinDistance
//
// Although the algorithm is typically described using an m x n array,
// only one row plus one element are used at a time, so this implementation
// keeps a single vector for the row: to update one entry, only the
// entries to the left, top, and top-left are needed.
func editDistance(s1, s2 string, allowReplacements bool, maxEditDistance int) int {
	m := len(s1)
	n := len(s2)

	row := make([]int, n+1)
	for i := 1; i <= n; i++ {
		row[i] = i
	}

	for y := 1; y <= m; y++ {
		row[0] = y
		bestThisRow := row[0]

		previous := y - 1
		for x := 1; x <= n; x++ {
			oldRow := row[x]
			if allowReplacements {
				v := 0
				if s1[y-1] != s2[x-1] {
					v = 1
				}
				row[x] = minInt(previous+v, minInt(row[x-1], row[x])+1)
			} else {
				if s1[y-1] == s2[x-1] {
					row[x] = previous
				} else {
					row[x] = minInt(row[x-1], row[x]) + 1
				}
			}
			previous = oldRow
			bestThisRow = minInt(bestThisRow, row[x])
		}

		if maxEditDistance != 0 && bestThisRow > maxEditDistance {
			return maxEditDistance + 1
		}
	}

	return row[n]
}

func minInt(i, j int) int {
	if i < j {
		return i
	}
	return j
}

// SuggestTarget finds the closest registered target name to an unknown one
// the user typed, for the "did you mean...?" hint on ErrUnknownTarget.
// Returns "" if nothing is close enough to be worth suggesting.
func SuggestTarget(want string, known []string) string {
	const maxDistance = 3
	best := ""
	bestDistance := maxDistance + 1
	for _, k := range known {
		d := editDistance(want, k, true, bestDistance)
		if d < bestDistance {
			bestDistance = d
			best = k
		}
	}
	return best
}
