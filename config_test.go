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
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const sampleConfig = `
apps:
  - name: dockerhook
    script: dockerhook-server.py
    interpreter: python3
    args: --port 9000
    cwd: /opt/dockerhook
    instances: 1
    autorestart: true
    watch: false
    max_memory_restart: 1G
    env:
      NODE_ENV: production
  - name: relay
    script: /usr/local/bin/relay
    interpreter: none
    cwd: /srv/relay
    instances: 2
    autorestart: false
    watch: true
`

func TestLoadConfig(t *testing.T) {
	Convey("A valid configuration loads", t, func() {
		apps, e := LoadConfig(strings.NewReader(sampleConfig))
		So(e, ShouldBeNil)
		So(len(apps), ShouldEqual, 2)

		Convey("Declared order is preserved", func() {
			So(apps[0].Name, ShouldEqual, "dockerhook")
			So(apps[1].Name, ShouldEqual, "relay")
		})

		Convey("Fields are parsed", func() {
			d := apps[0]
			So(d.Script, ShouldEqual, "dockerhook-server.py")
			So(d.Interpreter, ShouldEqual, "python3")
			So(d.Direct(), ShouldBeFalse)
			So(d.Args, ShouldResemble, []string{"--port", "9000"})
			So(d.Cwd, ShouldEqual, "/opt/dockerhook")
			So(d.Instances, ShouldEqual, 1)
			So(d.Autorestart, ShouldBeTrue)
			So(d.Watch, ShouldBeFalse)
			So(d.MaxMemoryBytes, ShouldEqual, uint64(1)<<30)
			So(d.Env["NODE_ENV"], ShouldEqual, "production")
		})

		Convey("interpreter none means direct execution", func() {
			So(apps[1].Direct(), ShouldBeTrue)
			So(apps[1].MaxMemoryBytes, ShouldEqual, 0)
		})
	})
}

func TestLoadConfigRejects(t *testing.T) {
	load := func(doc string) error {
		_, e := LoadConfig(strings.NewReader(doc))
		return e
	}
	base := `
apps:
  - name: %NAME%
    script: run.py
    interpreter: python3
    cwd: /srv
    instances: %INST%
    autorestart: true
    watch: false
`
	mk := func(name, inst string) string {
		s := strings.Replace(base, "%NAME%", name, 1)
		return strings.Replace(s, "%INST%", inst, 1)
	}

	Convey("Zero instances is malformed", t, func() {
		e := load(mk("app", "0"))
		mce, ok := e.(*MalformedConfigError)
		So(ok, ShouldBeTrue)
		So(mce.Field, ShouldEqual, "instances")
		So(mce.App, ShouldEqual, "app")
	})

	Convey("Negative instances is malformed", t, func() {
		e := load(mk("app", "-3"))
		mce, ok := e.(*MalformedConfigError)
		So(ok, ShouldBeTrue)
		So(mce.Field, ShouldEqual, "instances")
	})

	Convey("Duplicate names are malformed", t, func() {
		doc := mk("twin", "1") + `
  - name: twin
    script: other.py
    interpreter: python3
    cwd: /srv
    instances: 1
    autorestart: true
    watch: false
`
		e := load(doc)
		mce, ok := e.(*MalformedConfigError)
		So(ok, ShouldBeTrue)
		So(mce.Field, ShouldEqual, "name")
		So(mce.App, ShouldEqual, "twin")
	})

	Convey("Empty name is malformed", t, func() {
		e := load(mk("\"\"", "1"))
		mce, ok := e.(*MalformedConfigError)
		So(ok, ShouldBeTrue)
		So(mce.Field, ShouldEqual, "name")
	})

	Convey("A bad memory size is attributed to its app", t, func() {
		doc := mk("hog", "1") + "    max_memory_restart: 1.5G\n"
		e := load(doc)
		mce, ok := e.(*MalformedConfigError)
		So(ok, ShouldBeTrue)
		So(mce.Field, ShouldEqual, "max_memory_restart")
		So(mce.App, ShouldEqual, "hog")
	})
}

func TestParseMemorySize(t *testing.T) {
	Convey("Valid sizes parse", t, func() {
		cases := map[string]uint64{
			"1K":   1 << 10,
			"100K": 100 << 10,
			"512M": 512 << 20,
			"1G":   1 << 30,
			"16G":  16 << 30,
		}
		for in, want := range cases {
			got, e := ParseMemorySize(in)
			So(e, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
	})

	Convey("Malformed sizes are rejected", t, func() {
		for _, in := range []string{"", "G", "1", "1T", "1g", "1.5G", "-1G", "G1"} {
			_, e := ParseMemorySize(in)
			So(e, ShouldNotBeNil)
			mce, ok := e.(*MalformedConfigError)
			So(ok, ShouldBeTrue)
			So(mce.Field, ShouldEqual, "max_memory_restart")
		}
	})

	Convey("Sizes overflowing uint64 are rejected, not wrapped", t, func() {
		cases := []string{
			"17179869184G",         // 2^34 G = 2^64 bytes
			"18446744073709551616K", // 2^64 in the digits alone
			"99999999999999999999M",
		}
		for _, in := range cases {
			_, e := ParseMemorySize(in)
			So(e, ShouldNotBeNil)
			mce, ok := e.(*MalformedConfigError)
			So(ok, ShouldBeTrue)
			So(mce.Field, ShouldEqual, "max_memory_restart")
		}
		// The largest representable multiple still parses.
		got, e := ParseMemorySize("17179869183G")
		So(e, ShouldBeNil)
		So(got, ShouldEqual, uint64(17179869183)<<30)
	})

	Convey("FormatMemorySize inverts ParseMemorySize", t, func() {
		for _, in := range []string{"1K", "100K", "512M", "3G", "2048M"} {
			b, e := ParseMemorySize(in)
			So(e, ShouldBeNil)
			rt, e := ParseMemorySize(FormatMemorySize(b))
			So(e, ShouldBeNil)
			So(rt, ShouldEqual, b)
		}
	})
}

func TestConfigRoundTrip(t *testing.T) {
	Convey("Descriptors survive a save and reload", t, func() {
		apps, e := LoadConfig(strings.NewReader(sampleConfig))
		So(e, ShouldBeNil)

		buf := &bytes.Buffer{}
		So(SaveConfig(buf, apps), ShouldBeNil)

		again, e := LoadConfig(buf)
		So(e, ShouldBeNil)
		So(len(again), ShouldEqual, len(apps))
		for i := range apps {
			So(again[i], ShouldResemble, apps[i])
		}
	})
}
