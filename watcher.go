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
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the watcher waits for the filesystem
// to settle before it fires.  A deploy rarely touches just one file.
const DefaultWatchDebounce = time.Second

// Watcher fires a callback when files under a directory tree change,
// debounced so a burst of writes produces one restart rather than one
// per file.  Hidden directories (dot prefixed) are not watched.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	fire     func()
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher recursively watches root and invokes fire after changes
// settle.  A zero debounce selects DefaultWatchDebounce.
func NewWatcher(root string, debounce time.Duration, fire func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fsw, e := fsnotify.NewWatcher()
	if e != nil {
		return nil, e
	}
	w := &Watcher{
		root:     root,
		fsw:      fsw,
		debounce: debounce,
		fire:     fire,
		done:     make(chan struct{}),
	}
	if e := w.addTree(root); e != nil {
		fsw.Close()
		return nil, e
	}
	go w.run()
	return w, nil
}

// Stop tears the watcher down.  Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := filepath.Base(path); path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			// New subdirectories join the watch.
			if ev.Has(fsnotify.Create) {
				if fi, e := os.Stat(ev.Name); e == nil && fi.IsDir() {
					w.addTree(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.fire()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors are not fatal; keep going.
		}
	}
}
