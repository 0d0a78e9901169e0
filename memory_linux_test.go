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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultMemorySampler(t *testing.T) {
	Convey("Our own process has a nonzero RSS", t, func() {
		rss, e := defaultMemorySampler(os.Getpid())
		So(e, ShouldBeNil)
		So(rss, ShouldBeGreaterThan, 0)
	})

	Convey("A dead pid reports ErrProcessGone", t, func() {
		// Max pid on Linux is bounded well below this.
		_, e := defaultMemorySampler(1 << 30)
		So(e, ShouldEqual, ErrProcessGone)
	})
}
