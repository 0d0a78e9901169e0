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
	"bufio"
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultStopTime is how long a child gets to exit after SIGTERM before
// it is killed outright.
const DefaultStopTime = time.Second * 10

// ProcessHandle identifies one spawned child process.  A fresh handle is
// created on every (re)spawn, and destroyed once the process is confirmed
// terminated and no respawn is pending.  The handle is owned by the
// Process that spawned it.
type ProcessHandle struct {
	ID                   string    `json:"id"`
	PID                  int       `json:"pid"`
	StartedAt            time.Time `json:"startedAt"`
	LastKnownMemoryBytes uint64    `json:"lastKnownMemoryBytes"`
}

// Process spawns one instance of an application descriptor as an
// operating system child process.  It implements Provider.  The argv is
// built from the descriptor's launch strategy: either the script runs
// directly, or the configured interpreter runs it.
type Process struct {
	app      *AppDescriptor
	name     string
	logger   *log.Logger
	notify   func()
	reason   error
	failed   bool
	stopped  bool
	stopTime time.Duration
	cmd      *exec.Cmd
	handle   *ProcessHandle

	lock   sync.Mutex
	waiter sync.WaitGroup
}

// NewProcess returns a Process for one instance of the descriptor.
// Ordinal is 1-based, and only shows up in the name when the descriptor
// asks for more than one copy.
func NewProcess(app *AppDescriptor, ordinal int) *Process {
	name := app.Name
	if app.Instances > 1 {
		name = app.Name + ":" + strconv.Itoa(ordinal)
	}
	return &Process{
		app:      app,
		name:     name,
		logger:   log.New(os.Stderr, "", log.LstdFlags),
		stopTime: DefaultStopTime,
	}
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) SetLogger(l *log.Logger) {
	p.lock.Lock()
	p.logger = l
	p.lock.Unlock()
}

func (p *Process) SetNotify(fn func()) {
	p.lock.Lock()
	p.notify = fn
	p.lock.Unlock()
}

// SetStopTime adjusts the graceful shutdown window.  Zero waits forever.
func (p *Process) SetStopTime(d time.Duration) {
	p.lock.Lock()
	p.stopTime = d
	p.lock.Unlock()
}

// mergeEnviron layers the descriptor environment on top of the ambient
// one.  Descriptor values win on key collision.  The result is sorted so
// spawns are reproducible.
func mergeEnviron(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[k]; !ok {
			env = append(env, kv)
		}
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// buildCmd constructs a fresh exec.Cmd for one spawn.  An exec.Cmd can
// only run once, so every respawn gets a new one.
func (p *Process) buildCmd() *exec.Cmd {
	var cmd *exec.Cmd
	if p.app.Direct() {
		cmd = exec.Command(p.app.Script, p.app.Args...)
	} else {
		args := append([]string{p.app.Script}, p.app.Args...)
		cmd = exec.Command(p.app.Interpreter, args...)
	}
	cmd.Dir = p.app.Cwd
	cmd.Env = mergeEnviron(os.Environ(), p.app.Env)
	return cmd
}

func (p *Process) doLog(r io.ReadCloser, prefix string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			p.logger.Print(prefix, strings.Trim(line, "\n"))
		}
		if err != nil {
			return
		}
	}
}

// Start spawns the child.  It returns a *SpawnError if the working
// directory is missing or the operating system rejects the exec; it does
// not wait for the child to prove itself beyond that.
func (p *Process) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.stopped = false
	p.failed = false
	p.reason = nil

	if fi, e := os.Stat(p.app.Cwd); e != nil {
		return p.spawnFailed(e)
	} else if !fi.IsDir() {
		return p.spawnFailed(errors.New("cwd is not a directory"))
	}

	cmd := p.buildCmd()
	if stdout, e := cmd.StdoutPipe(); e != nil {
		p.logger.Printf("Failed to capture stdout: %v", e)
	} else {
		go p.doLog(stdout, "stdout> ")
	}
	if stderr, e := cmd.StderrPipe(); e != nil {
		p.logger.Printf("Failed to capture stderr: %v", e)
	} else {
		go p.doLog(stderr, "stderr> ")
	}

	if e := cmd.Start(); e != nil {
		return p.spawnFailed(e)
	}
	p.cmd = cmd
	p.handle = &ProcessHandle{
		ID:        uuid.NewString(),
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	p.logger.Printf("Spawned pid %d", p.handle.PID)
	p.waiter.Add(1)
	go p.doWait(cmd)
	return nil
}

// spawnFailed records the failure and wraps it.  Call with lock held.
func (p *Process) spawnFailed(e error) error {
	se := &SpawnError{App: p.name, Err: e}
	p.failed = true
	p.reason = se
	p.logger.Printf("Failed to spawn: %v", e)
	return se
}

// doWait reaps the child.  An exit that the operator did not ask for
// marks the process failed and fires the exit notification; the restart
// policy upstairs decides what happens next.
func (p *Process) doWait(cmd *exec.Cmd) {
	e := cmd.Wait()
	var fire func()
	p.lock.Lock()
	if p.cmd == cmd {
		p.handle = nil
		p.cmd = nil
		if !p.stopped {
			if e == nil {
				e = errors.New("unexpected termination")
			}
			p.failed = true
			p.reason = e
			p.logger.Printf("Exited: %v", e)
			fire = p.notify
		}
	}
	p.lock.Unlock()
	p.waiter.Done()
	if fire != nil {
		fire()
	}
}

// Stop requests a graceful shutdown with SIGTERM, escalating to SIGKILL
// once the stop time elapses.  It blocks until the child is reaped.
func (p *Process) Stop() {
	p.lock.Lock()
	p.stopped = true
	if cmd := p.cmd; cmd != nil && cmd.Process != nil {
		var timer *time.Timer
		if e := cmd.Process.Signal(unix.SIGTERM); e != nil {
			p.logger.Printf("Failed sending SIGTERM: %v", e)
		}
		if p.stopTime > 0 {
			proc := cmd.Process
			timer = time.AfterFunc(p.stopTime, func() {
				p.logger.Printf("Graceful shutdown timed out")
				proc.Kill()
			})
		}
		p.lock.Unlock()
		p.waiter.Wait()
		p.lock.Lock()
		if timer != nil {
			timer.Stop()
		}
	}
	p.cmd = nil
	p.handle = nil
	p.lock.Unlock()
}

func (p *Process) Check() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.failed {
		return p.reason
	}
	return nil
}

func (p *Process) Handle() *ProcessHandle {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.handle
}
