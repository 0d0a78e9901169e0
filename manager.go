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
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Manager owns the registry of supervised instances.  It is the single
// writer of instance state; everything mutates under its lock.  One
// background goroutine ticks the monitor, which samples child memory and
// applies the memory ceiling policy.
type Manager struct {
	instances     map[*Instance]bool
	watchers      []*Watcher
	name          string
	logger        *log.Logger
	log           *Log
	mlog          *MultiLogger
	cleanup       bool
	monitoring    bool
	sampler       MemorySampler
	restartLimit  int
	restartPeriod time.Duration
	serial        int64
	listSerial    int64
	createTime    time.Time
	updateTime    time.Time
	mx            sync.Mutex
	cvs           map[*sync.Cond]bool
}

// ManagerInfo is a consistent snapshot of top level manager state.
type ManagerInfo struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	Instances  int       `json:"instances"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

func (m *Manager) lock() {
	m.mx.Lock()
}

func (m *Manager) unlock() {
	m.mx.Unlock()
}

func (m *Manager) wakeUp() {
	// Lock must be held, or woken goroutines can miss the new serial.
	for cv := range m.cvs {
		cv.Broadcast()
	}
}

// bumpSerial increments the serial and notifies watchers.  Call with the
// lock held.
func (m *Manager) bumpSerial() int64 {
	m.updateTime = time.Now()
	m.serial++
	rv := m.serial
	m.wakeUp()
	return rv
}

// watchSerial blocks until the watched serial differs from old, or the
// expiration passes.  Zero expiration polls.
func (m *Manager) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&m.mx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			m.lock()
			expired = true
			cv.Broadcast()
			m.unlock()
		})
	} else {
		expired = true
	}

	m.lock()
	m.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(m.cvs, cv)
	m.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// WatchSerial monitors for a change in the global serial number, which
// bumps on any instance state change.
func (m *Manager) WatchSerial(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.serial, expire)
}

// WatchInstances monitors for a change in the set of instances.
func (m *Manager) WatchInstances(old int64, expire time.Duration) int64 {
	return m.watchSerial(old, &m.listSerial, expire)
}

// Serial returns the global serial number.
func (m *Manager) Serial() int64 {
	m.lock()
	rv := m.serial
	m.unlock()
	return rv
}

// Name returns the name the manager was created with.
func (m *Manager) Name() string {
	return m.name
}

// GetInfo returns a consistent snapshot of manager state.
func (m *Manager) GetInfo() *ManagerInfo {
	m.lock()
	i := &ManagerInfo{
		Name:       m.name,
		Serial:     m.serial,
		Instances:  len(m.instances),
		CreateTime: m.createTime,
		UpdateTime: m.updateTime,
	}
	m.unlock()
	return i
}

// SetMemorySampler replaces the RSS sampler.  The default reads the
// platform's process tables; tests inject deterministic samplers.
func (m *Manager) SetMemorySampler(f MemorySampler) {
	m.lock()
	m.sampler = f
	m.unlock()
}

// SetRestartLimit arms a restart-rate ceiling applied to instances added
// afterwards: at most limit starts per period, after which an instance
// is parked in the failed state for a cool down.  Zero limit (the
// default) keeps the unconditional restart policy.
func (m *Manager) SetRestartLimit(limit int, period time.Duration) {
	m.lock()
	m.restartLimit = limit
	m.restartPeriod = period
	m.unlock()
}

// AddInstance registers an already built instance.
func (m *Manager) AddInstance(s *Instance) {
	m.lock()
	s.setManager(m)
	m.listSerial = m.bumpSerial()
	m.unlock()
}

// RemoveInstance deletes a disabled instance from the manager.
func (m *Manager) RemoveInstance(s *Instance) error {
	m.lock()
	if s.enabled {
		m.unlock()
		return ErrIsEnabled
	}
	s.delManager()
	m.listSerial = m.bumpSerial()
	m.unlock()
	return nil
}

// AddApp registers one instance per requested copy of the descriptor,
// and arms a file watcher over its working directory when the
// descriptor asks for one.  The instances start disabled.
func (m *Manager) AddApp(d *AppDescriptor) ([]*Instance, error) {
	added := make([]*Instance, 0, d.Instances)
	for i := 1; i <= d.Instances; i++ {
		added = append(added, newAppInstance(d, i))
	}

	// Check and register under one lock, so concurrent AddApp calls
	// cannot both claim the same name.
	m.lock()
	for s := range m.instances {
		if s.Matches(d.Name) {
			m.unlock()
			return nil, ErrNameInUse
		}
	}
	for _, s := range added {
		s.setManager(m)
	}
	m.listSerial = m.bumpSerial()
	m.unlock()
	if d.Watch {
		name := d.Name
		w, e := NewWatcher(d.Cwd, 0, func() {
			m.logf("Files changed under %s, restarting %s", d.Cwd, name)
			m.RestartApp(name)
		})
		if e != nil {
			m.logf("Cannot watch %s for %s: %v", d.Cwd, name, e)
		} else {
			m.lock()
			m.watchers = append(m.watchers, w)
			m.unlock()
		}
	}
	return added, nil
}

// Instances returns the registered instances, in arbitrary order.
func (m *Manager) Instances() []*Instance {
	m.lock()
	rv := make([]*Instance, 0, len(m.instances))
	for s := range m.instances {
		rv = append(rv, s)
	}
	m.unlock()
	return rv
}

// FindInstances returns the instances matching name, which may be a bare
// application name or a specific app:ordinal.
func (m *Manager) FindInstances(name string) []*Instance {
	rv := []*Instance{}
	m.lock()
	for s := range m.instances {
		if s.Matches(name) {
			rv = append(rv, s)
		}
	}
	m.unlock()
	return rv
}

// EnableAll enables every registered instance, returning the first error
// encountered (remaining instances are still attempted).
func (m *Manager) EnableAll() error {
	var first error
	for _, s := range m.Instances() {
		if e := s.Enable(); e != nil && first == nil {
			first = e
		}
	}
	return first
}

// RestartApp bounces every instance matching name.  This is an operator
// style restart: failures are cleared and the restart counter does not
// move.
func (m *Manager) RestartApp(name string) error {
	m.lock()
	defer m.unlock()
	found := false
	for s := range m.instances {
		if !s.Matches(name) {
			continue
		}
		found = true
		if !s.enabled {
			continue
		}
		s.stopInstance("Restart requested")
		s.starts = 0
		s.failed = false
		s.err = nil
		s.startInstance("Restart requested")
	}
	if !found {
		return ErrNoSuchApp
	}
	return nil
}

// SetLogger overrides the default stderr logger.
func (m *Manager) SetLogger(l *log.Logger) {
	if m.logger != nil {
		m.mlog.DelLogger(m.logger)
	}
	m.logger = l
	m.mlog.AddLogger(l)
}

// SetLogWriter points manager logging at an arbitrary writer; handy for
// test harnesses.
func (m *Manager) SetLogWriter(w io.Writer) {
	m.SetLogger(log.New(w, "", 0))
}

// getLogger hands out a logger that fans into the manager log.
func (m *Manager) getLogger() *log.Logger {
	return log.New(m.mlog, "", 0)
}

func (m *Manager) logf(format string, v ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

// monitor is the supervisory control loop.  Each tick it samples memory
// for every running instance and applies the ceiling policy, then runs
// health checks.
func (m *Manager) monitor() {
	finish := false
	for !finish {
		m.lock()
		if m.monitoring {
			for s := range m.instances {
				if s.enabled {
					m.superviseInstance(s)
				}
			}
		}
		if m.cleanup {
			m.monitoring = false
			finish = true
		}
		m.unlock()

		// a "prime" number of milliseconds, to ensure a more
		// or less even distribution of clock events
		time.Sleep(time.Millisecond * 587)
	}
}

// superviseInstance does one monitor pass over one instance.  Call with
// the lock held.
func (m *Manager) superviseInstance(s *Instance) {
	if s.running && !s.stopping {
		if h := s.prov.Handle(); h != nil && m.sampler != nil {
			sample, e := m.sampler(h.PID)
			switch {
			case e == ErrProcessGone:
				// Normal exit in flight; the reaper will
				// deliver the exit event.
			case e != nil:
				// Sampling is best effort.
			default:
				s.memory = sample
				h.LastKnownMemoryBytes = sample
				if s.memLimit > 0 && sample > s.memLimit {
					s.overLimit(sample)
					return
				}
			}
		}
	}
	s.checkInstance()
}

// StopMonitoring pauses the monitor; children keep running but memory
// ceilings and health checks are not enforced.
func (m *Manager) StopMonitoring() {
	m.lock()
	m.monitoring = false
	m.unlock()
	m.logf("*** %s: monitoring stopped ***", m.name)
}

// StartMonitoring resumes the monitor.
func (m *Manager) StartMonitoring() {
	m.logf("*** %s: monitoring started ***", m.name)
	m.lock()
	m.monitoring = true
	m.unlock()
}

// Shutdown terminates every child (gracefully, then forcefully), stops
// the watchers and the monitor, and empties the registry.
func (m *Manager) Shutdown() {
	m.lock()
	watchers := m.watchers
	m.watchers = nil
	m.monitoring = false
	m.cleanup = true
	for s := range m.instances {
		s.enabled = false
		s.stopInstance("Shutting down")
		s.delManager()
	}
	m.unlock()
	for _, w := range watchers {
		w.Stop()
	}
	m.logf("*** %s: shut down ***", m.name)
}

// GetLog returns manager-wide log records newer than lastid.
func (m *Manager) GetLog(lastid int64) ([]LogRecord, int64) {
	m.lock()
	defer m.unlock()
	return m.log.GetRecords(lastid)
}

// WatchLog blocks until the manager log grows past old, or expire.
func (m *Manager) WatchLog(old int64, expire time.Duration) int64 {
	return m.log.Watch(old, expire)
}

// NewManager creates a Manager and starts its monitor goroutine.
// Monitoring starts paused; call StartMonitoring once instances are
// registered.
func NewManager(name string) *Manager {
	if name == "" {
		name = "hookvisor"
	}
	// Serial numbers start at the current nanosecond timestamp, so a
	// restarted daemon invalidates any client's cached serial.
	m := &Manager{name: name, serial: time.Now().UnixNano()}
	m.instances = make(map[*Instance]bool)
	m.cvs = make(map[*sync.Cond]bool)
	m.createTime = time.Now()
	m.updateTime = m.createTime
	m.mlog = NewMultiLogger()
	m.log = NewLog()
	m.mlog.AddLogger(log.New(m.log, "", 0))
	m.logger = log.New(os.Stderr, "", 0)
	m.sampler = defaultMemorySampler
	go m.monitor()
	return m
}
