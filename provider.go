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

import "log"

// Provider is what supplies the actual running entity behind an Instance.
// The stock implementation is Process, which spawns an operating system
// child; tests substitute fakes.  Except for Name and Handle, the manager
// promises not to call these methods concurrently, so implementors need
// not worry about locking against the manager.
type Provider interface {
	// Name returns the instance name, of the form <app> or
	// <app>:<ordinal> when the descriptor asks for several copies.
	Name() string

	// Start attempts to spawn the entity.  It blocks only long enough
	// to learn whether the operating system accepted the request.
	Start() error

	// Stop terminates the entity, gracefully first, forcefully if the
	// grace period runs out.  It blocks until the entity is gone and
	// is never allowed to fail.
	Stop()

	// Check reports nil if the entity is believed healthy, or the
	// reason it is not.
	Check() error

	// Handle returns the handle for the live process, or nil when
	// nothing is running.  The handle remains owned by the provider.
	Handle() *ProcessHandle

	// SetLogger directs the provider's output somewhere useful.
	SetLogger(*log.Logger)

	// SetNotify registers a callback invoked (from any goroutine) when
	// the provider detects that the entity died on its own.
	SetNotify(func())
}
