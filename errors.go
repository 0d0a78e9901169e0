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
	"errors"
	"fmt"
)

var (
	ErrNoManager   = errors.New("no manager for instance")
	ErrIsEnabled   = errors.New("instance is enabled")
	ErrNotRunning  = errors.New("instance is not running")
	ErrNameInUse   = errors.New("application name already registered")
	ErrNoSuchApp   = errors.New("no such application")
	ErrRateLimited = errors.New("restarting too quickly")
)

// MalformedConfigError reports a configuration that failed validation.
// It names the application (when known) and the offending field, so the
// operator can find the bad stanza without a diff.
type MalformedConfigError struct {
	App    string // application name, may be empty if the name itself is bad
	Field  string // schema field that failed validation
	Reason string
}

func (e *MalformedConfigError) Error() string {
	if e.App == "" {
		return fmt.Sprintf("malformed config: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed config: app %q field %q: %s",
		e.App, e.Field, e.Reason)
}

// SpawnError reports that the operating system rejected a spawn request,
// typically because the entry point is missing or not executable, or the
// working directory does not exist.  A spawn failure is scoped to one
// instance; siblings are unaffected.
type SpawnError struct {
	App string // instance name
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.App, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
