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

//go:build linux

package hookvisor

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// defaultMemorySampler reads VmRSS from /proc/<pid>/status.  The value
// there is reported in kB.
func defaultMemorySampler(pid int) (uint64, error) {
	if e := unix.Kill(pid, 0); e == unix.ESRCH {
		return 0, ErrProcessGone
	}
	data, e := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if e != nil {
		if os.IsNotExist(e) {
			return 0, ErrProcessGone
		}
		return 0, e
	}
	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok || k != "VmRSS" {
			continue
		}
		fields := strings.Fields(v)
		if len(fields) == 0 {
			break
		}
		n, e := strconv.ParseUint(fields[0], 10, 64)
		if e != nil {
			return 0, e
		}
		if len(fields) > 1 && fields[1] == "kB" {
			n *= 1024
		}
		return n, nil
	}
	// A kernel thread or zombie has no VmRSS line; report zero usage.
	return 0, nil
}
