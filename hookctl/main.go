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

// hookctl is the command line client for hookvisord.
//
//	hookctl [-a addr] list
//	hookctl [-a addr] status <instance>
//	hookctl [-a addr] enable|disable|restart|clear <instance>
//	hookctl [-a addr] log [<instance>]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hookvisor/hookvisor"
	"github.com/hookvisor/hookvisor/rest"
)

var addr = "http://127.0.0.1:8321"

func usage() {
	fmt.Fprintln(os.Stderr,
		"usage: hookctl [-a addr] <list|status|enable|disable|restart|clear|log> [instance]")
	os.Exit(2)
}

func main() {
	flag.StringVar(&addr, "a", addr, "server address")
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	c := rest.NewClient(addr, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := args[0]
	var e error
	switch cmd {
	case "list":
		var names []string
		if names, e = c.Instances(ctx); e == nil {
			for _, n := range names {
				fmt.Println(n)
			}
		}
	case "status":
		if len(args) != 2 {
			usage()
		}
		var info *rest.InstanceInfo
		if info, e = c.InstanceInfo(ctx, args[1]); e == nil {
			fmt.Printf("%s: %s (%s)\n", info.Name, info.State, info.Status)
			if info.PID != 0 {
				fmt.Printf("  pid %d, up since %s\n",
					info.PID, info.StartedAt.Format(time.RFC3339))
			}
			fmt.Printf("  restarts %d, memory %d bytes\n",
				info.RestartCount, info.MemoryBytes)
		}
	case "enable", "disable", "restart", "clear":
		if len(args) != 2 {
			usage()
		}
		switch cmd {
		case "enable":
			e = c.Enable(ctx, args[1])
		case "disable":
			e = c.Disable(ctx, args[1])
		case "restart":
			e = c.Restart(ctx, args[1])
		case "clear":
			e = c.Clear(ctx, args[1])
		}
	case "log":
		if len(args) == 2 {
			var lines []string
			if lines, e = c.InstanceLog(ctx, args[1]); e == nil {
				for _, l := range lines {
					fmt.Println(l)
				}
			}
		} else {
			var recs []hookvisor.LogRecord
			if recs, e = c.ManagerLog(ctx, 0); e == nil {
				for _, r := range recs {
					fmt.Printf("%s %s\n",
						r.Time.Format(time.RFC3339), r.Text)
				}
			}
		}
	default:
		usage()
	}
	if e != nil {
		log.Fatalf("hookctl %s: %v", cmd, e)
	}
}
