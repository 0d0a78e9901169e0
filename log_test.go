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

import (
	"bytes"
	"log"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogRing(t *testing.T) {
	Convey("Records come back oldest first with growing ids", t, func() {
		l := NewLog()
		logger := log.New(l, "", 0)
		logger.Print("one")
		logger.Print("two")
		logger.Print("three")

		recs, id := l.GetRecords(0)
		So(len(recs), ShouldEqual, 3)
		So(recs[0].Text, ShouldEqual, "one")
		So(recs[2].Text, ShouldEqual, "three")
		So(recs[0].ID, ShouldBeLessThan, recs[2].ID)
		So(id, ShouldEqual, recs[2].ID)

		Convey("An up to date etag short-circuits", func() {
			again, id2 := l.GetRecords(id)
			So(again, ShouldBeNil)
			So(id2, ShouldEqual, id)
		})

		Convey("Clear empties the ring", func() {
			l.Clear()
			recs, _ := l.GetRecords(0)
			So(len(recs), ShouldEqual, 0)
		})
	})

	Convey("The ring retains only the newest records", t, func() {
		l := NewLog()
		logger := log.New(l, "", 0)
		for i := 0; i < MaxLogRecords+10; i++ {
			logger.Print("line")
		}
		recs, _ := l.GetRecords(0)
		So(len(recs), ShouldEqual, MaxLogRecords)
	})

	Convey("Watch wakes on a new record", t, func() {
		l := NewLog()
		_, id := l.GetRecords(0)
		go func() {
			time.Sleep(10 * time.Millisecond)
			log.New(l, "", 0).Print("wake up")
		}()
		nv := l.Watch(id, 5*time.Second)
		So(nv, ShouldNotEqual, id)
	})
}

func TestMultiLogger(t *testing.T) {
	Convey("Lines fan out to every sink", t, func() {
		ml := NewMultiLogger()
		b1 := &bytes.Buffer{}
		b2 := &bytes.Buffer{}
		l1 := log.New(b1, "", 0)
		l2 := log.New(b2, "", 0)
		ml.AddLogger(l1)
		ml.AddLogger(l2)
		ml.AddLogger(l2) // duplicates are ignored

		ml.Logger().Print("hello")
		So(b1.String(), ShouldEqual, "hello\n")
		So(b2.String(), ShouldEqual, "hello\n")

		Convey("Removed sinks stop receiving", func() {
			ml.DelLogger(l2)
			ml.Logger().Print("again")
			So(b1.String(), ShouldEqual, "hello\nagain\n")
			So(b2.String(), ShouldEqual, "hello\n")
		})
	})
}
