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

// Package rest exposes a hookvisor Manager over HTTP, and provides the
// matching client.
package rest

import (
	"time"
)

const mimeJSON = "application/json; charset=UTF-8"

var ok struct{}

// InstanceInfo is the wire form of one instance's state.
type InstanceInfo struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Enabled      bool      `json:"enabled"`
	Running      bool      `json:"running"`
	Failed       bool      `json:"failed"`
	PID          int       `json:"pid,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	RestartCount int       `json:"restartCount"`
	MemoryBytes  uint64    `json:"memoryBytes"`
	Status       string    `json:"status"`
	TimeStamp    time.Time `json:"tstamp"`
}

// Error is the wire form of a failed request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
