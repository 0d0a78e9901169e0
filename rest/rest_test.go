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

package rest

import (
	"context"
	"log"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/hookvisor/hookvisor"
)

// fakeProv is an in-memory provider; no child processes are spawned.
type fakeProv struct {
	name   string
	pid    int
	handle *hookvisor.ProcessHandle
	notify func()
	sync.Mutex
}

func (p *fakeProv) Name() string { return p.name }

func (p *fakeProv) Start() error {
	p.Lock()
	defer p.Unlock()
	p.handle = &hookvisor.ProcessHandle{
		ID:        p.name,
		PID:       p.pid,
		StartedAt: time.Now(),
	}
	return nil
}

func (p *fakeProv) Stop() {
	p.Lock()
	p.handle = nil
	p.Unlock()
}

func (p *fakeProv) Check() error { return nil }

func (p *fakeProv) Handle() *hookvisor.ProcessHandle {
	p.Lock()
	defer p.Unlock()
	return p.handle
}

func (p *fakeProv) SetLogger(l *log.Logger) {}

func (p *fakeProv) SetNotify(fn func()) { p.notify = fn }

func TestRESTRoundTrip(t *testing.T) {
	Convey("A client drives a manager over HTTP", t, func() {
		m := hookvisor.NewManager("rest-test")
		m.StopMonitoring()
		Reset(m.Shutdown)

		m.AddInstance(hookvisor.NewInstance(&fakeProv{name: "alpha", pid: 11}))
		m.AddInstance(hookvisor.NewInstance(&fakeProv{name: "beta", pid: 12}))

		srv := httptest.NewServer(NewHandler(m))
		Reset(srv.Close)
		c := NewClient(srv.URL, nil)
		ctx := context.Background()

		Convey("Manager info comes back", func() {
			mi, e := c.ManagerInfo(ctx)
			So(e, ShouldBeNil)
			So(mi.Name, ShouldEqual, "rest-test")
			So(mi.Instances, ShouldEqual, 2)
		})

		Convey("Instances list is sorted", func() {
			names, e := c.Instances(ctx)
			So(e, ShouldBeNil)
			So(names, ShouldResemble, []string{"alpha", "beta"})
		})

		Convey("Enable, inspect, disable", func() {
			So(c.Enable(ctx, "alpha"), ShouldBeNil)

			info, e := c.InstanceInfo(ctx, "alpha")
			So(e, ShouldBeNil)
			So(info.Enabled, ShouldBeTrue)
			So(info.Running, ShouldBeTrue)
			So(info.State, ShouldEqual, "running")
			So(info.PID, ShouldEqual, 11)

			So(c.Restart(ctx, "alpha"), ShouldBeNil)
			info, e = c.InstanceInfo(ctx, "alpha")
			So(e, ShouldBeNil)
			So(info.Running, ShouldBeTrue)
			So(info.RestartCount, ShouldEqual, 0)

			So(c.Disable(ctx, "alpha"), ShouldBeNil)
			info, e = c.InstanceInfo(ctx, "alpha")
			So(e, ShouldBeNil)
			So(info.Enabled, ShouldBeFalse)
			So(info.Running, ShouldBeFalse)
			So(info.PID, ShouldEqual, 0)
			So(info.StartedAt.IsZero(), ShouldBeTrue)
		})

		Convey("Clear is accepted", func() {
			So(c.Clear(ctx, "beta"), ShouldBeNil)
		})

		Convey("Unknown instances are a 404", func() {
			_, e := c.InstanceInfo(ctx, "gamma")
			re, isRE := e.(*Error)
			So(isRE, ShouldBeTrue)
			So(re.Code, ShouldEqual, 404)
		})

		Convey("Instance logs come back", func() {
			So(c.Enable(ctx, "beta"), ShouldBeNil)
			lines, e := c.InstanceLog(ctx, "beta")
			So(e, ShouldBeNil)
			So(len(lines), ShouldBeGreaterThan, 0)
		})

		Convey("Manager log records carry ids", func() {
			So(c.Enable(ctx, "beta"), ShouldBeNil)
			recs, e := c.ManagerLog(ctx, 0)
			So(e, ShouldBeNil)
			So(len(recs), ShouldBeGreaterThan, 0)
			So(recs[len(recs)-1].ID, ShouldBeGreaterThan, 0)
		})
	})
}
