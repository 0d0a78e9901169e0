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
	"log"
	"strings"
	"time"
)

// State is the coarse lifecycle state of one instance, as driven by the
// monitor.  An instance sits in Running until its memory sample crosses
// the ceiling (OverLimit), at which point it is torn down (Terminating)
// and respawned.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateOverLimit
	StateTerminating
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateOverLimit:
		return "over-limit"
	case StateTerminating:
		return "terminating"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Instance is one supervised copy of an application.  A descriptor with
// instances: N yields N of these, each with its own Provider and its own
// restart count.
//
// Instance methods are not thread safe until the instance is added to a
// Manager; after that the manager's lock protects concurrent access.
type Instance struct {
	prov     Provider
	mgr      *Manager
	app      *AppDescriptor // nil for bare providers (tests)
	name     string
	enabled  bool
	running  bool
	stopping bool
	failed   bool
	state    State
	err      error
	restart  bool   // respawn on unexpected exit
	memLimit uint64 // restart above this RSS, 0 = no ceiling
	memory   uint64 // last sampled RSS
	restarts int
	stamp    time.Time
	reason   string

	// Restart rate limiting, off unless the manager configures it.
	starts     int
	rateLog    bool
	rateLimit  int
	ratePeriod time.Duration
	startTimes []time.Time

	slog *instanceLog
	mlog *MultiLogger
}

const maxInstanceLogLines = 1000

// instanceLog is a fixed size ring of log lines for one instance.
type instanceLog struct {
	lines []string
	next  int // total lines ever written
}

func (il *instanceLog) Write(b []byte) (int, error) {
	if il.lines == nil {
		il.lines = make([]string, maxInstanceLogLines)
	}
	str := strings.Trim(string(b), "\n")
	for _, line := range strings.Split(str, "\n") {
		il.lines[il.next%len(il.lines)] = line
		il.next++
	}
	return len(b), nil
}

func (il *instanceLog) snapshot() []string {
	if il.lines == nil {
		return nil
	}
	cnt := il.next
	if cnt > len(il.lines) {
		cnt = len(il.lines)
	}
	rv := make([]string, 0, cnt)
	for i := il.next - cnt; i < il.next; i++ {
		rv = append(rv, il.lines[i%len(il.lines)])
	}
	return rv
}

// NewInstance wraps a Provider in an Instance.  Application instances
// are normally built by Manager.AddApp; this constructor exists for
// custom providers.
func NewInstance(p Provider) *Instance {
	s := &Instance{prov: p, name: p.Name(), state: StateStopped}
	s.mlog = NewMultiLogger()
	s.mlog.Logger().SetPrefix("[" + s.name + "] ")
	s.slog = &instanceLog{}
	s.mlog.AddLogger(log.New(s.slog, "", log.LstdFlags))
	s.prov.SetLogger(s.mlog.Logger())
	s.prov.SetNotify(s.exited)
	return s
}

// newAppInstance builds the instance for one copy of a descriptor.
func newAppInstance(app *AppDescriptor, ordinal int) *Instance {
	s := NewInstance(NewProcess(app, ordinal))
	s.app = app
	s.restart = app.Autorestart
	s.memLimit = app.MaxMemoryBytes
	return s
}

// Name returns the instance name, <app> or <app>:<ordinal>.
func (s *Instance) Name() string {
	return s.name
}

// App returns the descriptor this instance was built from, or nil.
func (s *Instance) App() *AppDescriptor {
	return s.app
}

// SetRestart overrides the respawn-on-exit policy.  For descriptor built
// instances this starts out as the autorestart field.
func (s *Instance) SetRestart(on bool) {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	s.restart = on
}

// SetMemoryLimit overrides the memory ceiling in bytes.  Zero disables
// memory supervision for this instance.
func (s *Instance) SetMemoryLimit(b uint64) {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	s.memLimit = b
}

// setRateLimit arms the restart-rate ceiling.  Called by the manager
// when the instance is added.
func (s *Instance) setRateLimit(limit int, period time.Duration) {
	s.starts = 0
	s.rateLimit = limit
	s.ratePeriod = period
	if limit > 0 {
		s.startTimes = make([]time.Time, limit)
	} else {
		s.startTimes = nil
	}
}

// Status returns the latest status message and when it was recorded.
func (s *Instance) Status() (string, time.Time) {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.reason, s.stamp
}

// Enabled reports whether the operator wants this instance up.
func (s *Instance) Enabled() bool {
	m := s.mgr
	if m == nil {
		return false
	}
	m.lock()
	rv := s.enabled
	m.unlock()
	return rv
}

// Running reports whether a child is believed alive.
func (s *Instance) Running() bool {
	m := s.mgr
	if m == nil {
		return false
	}
	m.lock()
	rv := s.running && !s.stopping
	m.unlock()
	return rv
}

// Failed reports whether the instance is in the failure state.
func (s *Instance) Failed() bool {
	m := s.mgr
	if m == nil {
		return false
	}
	m.lock()
	rv := s.failed
	m.unlock()
	return rv
}

// State returns the monitor state.
func (s *Instance) State() State {
	m := s.mgr
	if m == nil {
		return StateStopped
	}
	m.lock()
	rv := s.state
	m.unlock()
	return rv
}

// RestartCount returns how many times the policy respawned this
// instance.  It only ever grows; operator restarts do not count.
func (s *Instance) RestartCount() int {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.restarts
}

// LastMemory returns the most recent RSS sample in bytes.
func (s *Instance) LastMemory() uint64 {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.memory
}

// Handle returns a copy of the live process handle, if any.
func (s *Instance) Handle() (ProcessHandle, bool) {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	if h := s.prov.Handle(); h != nil {
		return *h, true
	}
	return ProcessHandle{}, false
}

// GetLog returns the retained log lines for this instance, oldest first.
func (s *Instance) GetLog() []string {
	if m := s.mgr; m != nil {
		m.lock()
		defer m.unlock()
	}
	return s.slog.snapshot()
}

// Matches reports whether check names this instance.  A bare application
// name matches every ordinal; app:2 only matches that copy.
func (s *Instance) Matches(check string) bool {
	a1 := strings.SplitN(check, ":", 2)
	a2 := strings.SplitN(s.name, ":", 2)
	if a1[0] != a2[0] {
		return false
	}
	if len(a1) == 1 {
		return true
	}
	if len(a2) == 1 {
		return false
	}
	return a1[1] == a2[1]
}

// Enable asks the supervisor to bring this instance up and keep it up.
func (s *Instance) Enable() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if s.enabled {
		return nil
	}
	s.logf("Enabling %s", s.name)
	s.enabled = true
	s.starts = 0
	s.setStatus("Enabled")
	s.startInstance("Enabled")
	if s.failed {
		return s.err
	}
	return nil
}

// Disable brings the instance down and clears any failure.  A disabled
// instance is never respawned, no matter the restart policy.
func (s *Instance) Disable() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if !s.enabled {
		return nil
	}
	s.logf("Disabling %s", s.name)
	s.enabled = false
	s.failed = false
	s.err = nil
	s.stopInstance("Disabled")
	return nil
}

// Restart bounces the instance, clearing any failure.  This is an
// operator action and does not count against the restart counter.
func (s *Instance) Restart() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if !s.enabled {
		return nil
	}
	s.logf("Restarting %s", s.name)
	s.stopInstance("Restarting")
	s.starts = 0
	s.failed = false
	s.err = nil
	s.startInstance("Restarted")
	return nil
}

// Clear wipes the failure state and tries to start the instance again if
// it is enabled.
func (s *Instance) Clear() {
	if s.mgr == nil {
		return
	}
	s.mgr.lock()
	defer s.mgr.unlock()

	if s.failed {
		s.logf("Clearing fault on %s", s.name)
	}
	s.starts = 0
	s.failed = false
	s.err = nil
	if s.enabled {
		s.startInstance("Cleared fault")
	}
}

// Check runs the provider health check, failing the instance if it
// reports trouble.
func (s *Instance) Check() error {
	if s.mgr == nil {
		return ErrNoManager
	}
	s.mgr.lock()
	defer s.mgr.unlock()
	return s.checkInstance()
}

func (s *Instance) setStatus(reason string) {
	s.reason = reason
	s.stamp = time.Now()
	if s.mgr != nil {
		s.mgr.bumpSerial()
	}
}

func (s *Instance) logf(format string, v ...interface{}) {
	s.mlog.Logger().Printf(format, v...)
}

func (s *Instance) setManager(mgr *Manager) {
	if s.mgr != nil {
		panic("instance already added to a manager")
	}
	s.mlog.AddLogger(mgr.getLogger())
	s.mgr = mgr
	if s.rateLimit == 0 && mgr.restartLimit > 0 {
		s.setRateLimit(mgr.restartLimit, mgr.restartPeriod)
	}
	s.setStatus("Added")
	s.logf("Added %s to %s", s.name, mgr.Name())
	mgr.instances[s] = true
}

func (s *Instance) delManager() {
	if s.mgr == nil {
		return
	}
	delete(s.mgr.instances, s)
	s.setStatus("Removed")
	s.mgr = nil
}

// startInstance spawns the child.  Call with the manager lock held.
func (s *Instance) startInstance(detail string) {
	if s.running || !s.enabled || s.stopping {
		return
	}
	if s.tooQuickly() != nil {
		s.failed = true
		s.err = ErrRateLimited
		s.state = StateFailed
		s.setStatus("Restarting too quickly")
		return
	}
	if s.rateLimit > 0 {
		s.startTimes[s.starts%s.rateLimit] = time.Now()
	}
	s.starts++
	if e := s.prov.Start(); e != nil {
		s.logf("Failed to start %s: %v", s.name, e)
		s.err = e
		s.failed = true
		s.state = StateFailed
		s.setStatus("Failed to start: " + e.Error())
		return
	}
	s.running = true
	s.failed = false
	s.state = StateRunning
	s.memory = 0
	s.setStatus("Started: " + detail)
	s.logf("Started %s: %s", s.name, detail)
}

// stopInstance terminates the child.  Call with the manager lock held.
func (s *Instance) stopInstance(detail string) {
	if !s.running || s.stopping {
		return
	}
	s.stopping = true
	s.state = StateTerminating
	s.prov.Stop()
	s.running = false
	s.stopping = false
	s.state = StateStopped
	s.setStatus("Stopped: " + detail)
	s.logf("Stopped %s: %s", s.name, detail)
}

func (s *Instance) checkInstance() error {
	if s.failed {
		return s.err
	}
	if !s.running {
		return ErrNotRunning
	}
	if e := s.prov.Check(); e != nil {
		s.logf("Instance %s faulted: %v", s.name, e)
		s.failed = true
		s.err = e
		s.running = false
		s.state = StateFailed
		s.setStatus("Faulted: " + e.Error())
		return e
	}
	return nil
}

// exited is the provider's exit notification.  It runs on the reaper
// goroutine, so it takes the manager lock itself.
func (s *Instance) exited() {
	m := s.mgr
	if m == nil {
		return
	}
	m.lock()
	s.handleExit()
	m.unlock()
}

// handleExit applies the restart policy to an unexpected child exit.
// Call with the manager lock held.
func (s *Instance) handleExit() {
	if !s.running || s.stopping {
		return
	}
	reason := s.prov.Check()
	if reason == nil {
		reason = ErrNotRunning
	}
	s.running = false
	s.failed = true
	s.err = reason
	s.state = StateFailed
	s.setStatus("Exited: " + reason.Error())
	if !s.enabled || !s.restart {
		s.logf("Instance %s exited, not restarting", s.name)
		return
	}
	s.restarts++
	s.logf("Instance %s exited, respawning (restart #%d)", s.name, s.restarts)
	s.failed = false
	s.err = nil
	s.startInstance("Respawn after exit")
}

// overLimit tears down and respawns an instance whose memory sample
// crossed the ceiling.  Exactly one restart is counted per excursion.
// Call with the manager lock held.
func (s *Instance) overLimit(sample uint64) {
	s.state = StateOverLimit
	s.setStatus("Memory over limit")
	s.logf("Instance %s memory %d exceeds limit %d, restarting",
		s.name, sample, s.memLimit)
	s.stopInstance("Memory over limit")
	s.restarts++
	s.startInstance("Respawn after memory limit")
}

// A instance is restarting too quickly if it starts more than rateLimit
// times inside ratePeriod.  Past the threshold the instance stays down
// for a full period before another start is allowed.
func (s *Instance) tooQuickly() error {
	if s.rateLimit == 0 {
		return nil
	}
	if s.starts < s.rateLimit {
		return nil
	}
	idx := (s.starts - 1) % s.rateLimit
	end := s.startTimes[idx]
	if time.Now().Before(end.Add(s.ratePeriod)) {
		if !s.rateLog {
			s.logf("Instance %s restarting too quickly", s.name)
		}
		s.rateLog = true
		return ErrRateLimited
	}
	if !s.rateLog {
		return nil
	}
	idx = (s.starts - 2) % s.rateLimit
	end = s.startTimes[idx]
	if time.Now().Before(end.Add(s.ratePeriod)) {
		return ErrRateLimited
	}
	s.rateLog = false
	return nil
}
