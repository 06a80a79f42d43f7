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

import (
	"bytes"
	"context"
	"time"
)

// RunCommand is the subprocess half of the Context interface (spec.md §6):
// the one way a Builder is expected to shell out. It captures combined
// stdout+stderr, enforces timeout if nonzero, and turns a nonzero exit
// into a *CommandFailedError carrying both streams for diagnostics.
func (c *Context) RunCommand(ctx context.Context, argv []string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := newCmd(ctx, argv)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return out.String(), ErrTimeout
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return out.String(), newCommandFailedError(argv, out.String(), out.String(), exitCode, err)
}
