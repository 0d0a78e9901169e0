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
	"strings"
	"sync"
	"time"
)

const (
	// MaxLogRecords bounds the manager-wide log ring.
	MaxLogRecords = 1000
)

// LogRecord is one retained log line.  IDs grow monotonically within a
// Log instance and are usable as etags by REST consumers.
type LogRecord struct {
	ID   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a fixed size ring of LogRecords with change notification.  It
// implements io.Writer so a log.Logger can feed it directly.
type Log struct {
	records []LogRecord
	written int
	id      int64
	cvs     map[*sync.Cond]bool
	mx      sync.Mutex
}

// Write implements the io.Writer consumed by log.Logger.  Input arrives
// a line (or a few) at a time, newline delimited.
func (l *Log) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	l.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		idx := l.written % len(l.records)
		l.id++
		l.records[idx] = LogRecord{ID: l.id, Time: time.Now(), Text: line}
		l.written++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.mx.Unlock()
	return len(b), nil
}

// Clear drops all retained records.  The ID sequence restarts from the
// current nanosecond timestamp so stale client etags cannot collide.
func (l *Log) Clear() {
	l.mx.Lock()
	l.written = 0
	l.id = time.Now().UnixNano()
	l.mx.Unlock()
}

// GetRecords returns the retained records, oldest first, plus the latest
// ID.  Passing the previously returned ID short-circuits with nil when
// nothing changed.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	if l.id == last {
		l.mx.Unlock()
		return nil, last
	}
	cnt := l.written
	if cnt > len(l.records) {
		cnt = len(l.records)
	}
	recs := make([]LogRecord, 0, cnt)
	for i := l.written - cnt; i < l.written; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	id := l.id
	l.mx.Unlock()
	return recs, id
}

// Watch blocks until the log grows past last or the expiration passes,
// returning the latest ID.  Zero expiration polls.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&l.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			l.mx.Lock()
			expired = true
			cv.Broadcast()
			l.mx.Unlock()
		})
	} else {
		expired = true
	}

	l.mx.Lock()
	l.cvs[cv] = true
	for l.id == last && !expired {
		cv.Wait()
	}
	delete(l.cvs, cv)
	if l.id != last {
		last = l.id
	}
	l.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{
		records: make([]LogRecord, MaxLogRecords),
		id:      time.Now().UnixNano(),
		cvs:     make(map[*sync.Cond]bool),
	}
}
