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
	"sync"
)

// MultiLogger fans a single log.Logger out to any number of destination
// loggers.  Instances log through one of these so a line lands in the
// instance ring, the manager ring, and wherever the operator pointed the
// daemon's own logger, all at once.  Destinations keep their own prefix
// and flags.
type MultiLogger struct {
	front *log.Logger
	sinks []*log.Logger
	mx    sync.Mutex
}

// Write implements the writer behind the front logger.  Input is text,
// newline delimited, delivered a line at a time; each line goes to every
// registered sink.
func (ml *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	ml.mx.Lock()
	for _, line := range lines {
		for _, sink := range ml.sinks {
			sink.Println(line)
		}
	}
	ml.mx.Unlock()
	return len(b), nil
}

// AddLogger registers a destination.  Adding the same logger twice is a
// no-op.
func (ml *MultiLogger) AddLogger(l *log.Logger) {
	ml.mx.Lock()
	defer ml.mx.Unlock()
	for _, sink := range ml.sinks {
		if sink == l {
			return
		}
	}
	ml.sinks = append(ml.sinks, l)
}

// DelLogger removes a destination.
func (ml *MultiLogger) DelLogger(l *log.Logger) {
	ml.mx.Lock()
	defer ml.mx.Unlock()
	for i, sink := range ml.sinks {
		if sink == l {
			ml.sinks = append(ml.sinks[:i], ml.sinks[i+1:]...)
			break
		}
	}
}

// Logger returns the front logger that writers should use.
func (ml *MultiLogger) Logger() *log.Logger {
	return ml.front
}

// NewMultiLogger returns an empty fan-out.
func NewMultiLogger() *MultiLogger {
	ml := &MultiLogger{}
	ml.front = log.New(ml, "", 0)
	return ml
}
