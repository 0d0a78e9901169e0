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

// hookvisord supervises the applications declared in a YAML config file,
// and serves the control API for hookctl.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hookvisor/hookvisor"
	"github.com/hookvisor/hookvisor/rest"
)

var (
	addr          = "127.0.0.1:8321"
	cfgPath       = "hookvisor.yml"
	name          = "hookvisord"
	enable        = true
	restartLimit  = 0
	restartPeriod = time.Minute
)

func main() {
	flag.StringVar(&addr, "a", addr, "listen address")
	flag.StringVar(&cfgPath, "c", cfgPath, "configuration file")
	flag.StringVar(&name, "n", name, "supervisor name")
	flag.BoolVar(&enable, "e", enable, "enable all applications")
	flag.IntVar(&restartLimit, "restart-limit", restartLimit,
		"max respawns per period before an app is parked (0 = unlimited)")
	flag.DurationVar(&restartPeriod, "restart-period", restartPeriod,
		"period for -restart-limit")
	flag.Parse()

	apps, e := hookvisor.LoadConfigFile(cfgPath)
	if e != nil {
		log.Fatalf("Failed to load %s: %v", cfgPath, e)
	}

	m := hookvisor.NewManager(name)
	if restartLimit > 0 {
		m.SetRestartLimit(restartLimit, restartPeriod)
	}
	for _, app := range apps {
		if _, e := m.AddApp(app); e != nil {
			log.Fatalf("Failed to add %s: %v", app.Name, e)
		}
	}
	if enable {
		if e := m.EnableAll(); e != nil {
			log.Printf("Not all applications started: %v", e)
		}
	}
	m.StartMonitoring()

	go func() {
		log.Fatal(http.ListenAndServe(addr, rest.NewHandler(m)))
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	<-sigs

	// Terminate all children before we go.
	m.Shutdown()
	os.Exit(0)
}
