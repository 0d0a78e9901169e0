// Copyright 2025 The Hookvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hookvisor

import "errors"

// MemorySampler reports the resident set size, in bytes, of the process
// with the given PID.  Samplers return ErrProcessGone when the process
// no longer exists; the monitor treats that as a normal exit rather than
// a sampling error.
type MemorySampler func(pid int) (uint64, error)

// ErrProcessGone reports that the sampled process has already exited.
var ErrProcessGone = errors.New("process no longer exists")

var errNoSampler = errors.New("memory sampling not supported on this platform")
