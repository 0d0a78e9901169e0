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

// Package hookvisor is a small, single-host process supervisor.  It loads
// a declarative list of application descriptors from a YAML file, spawns
// each application as one or more child processes, and keeps them alive.
//
// The supervisor restarts an application when it exits unexpectedly (if
// autorestart is set), when its resident memory exceeds a configured
// ceiling, or when files under its working directory change (if watch is
// set).  It is not an init replacement; it is a tool for running a small
// set of long lived application processes, such as a webhook receiver,
// under one roof.
//
// A Manager owns the registry of instances, and is the only writer to it.
// The Manager is meant to be embedded in a daemon; the rest package
// provides an HTTP handler and client so that a running manager can be
// inspected and controlled remotely.
//
// Note that the restart policy configured here is deliberately naive:
// with autorestart enabled and no restart limit set, a crashing child is
// respawned immediately and without bound.  Operators who worry about
// crash loops should set a restart limit (see Manager.SetRestartLimit).
package hookvisor
