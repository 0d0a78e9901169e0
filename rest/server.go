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

package rest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/hookvisor/hookvisor"
)

// Handler wraps a Manager, adding http.Handler functionality.
type Handler struct {
	m *hookvisor.Manager
	r *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	b, e := json.Marshal(v)
	if e != nil {
		h.internalError(w, e)
		return
	}
	w.Header().Set("Content-Type", mimeJSON)
	w.Write(b)
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	b, err := json.Marshal(e)
	if err != nil {
		h.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeJSON)
	w.WriteHeader(e.Code)
	w.Write(b)
}

// getManager reports manager state.  With ?serial=<old>&timeout=<secs>
// it long-polls until the serial moves past the caller's cached value.
func (h *Handler) getManager(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if old, e := strconv.ParseInt(q.Get("serial"), 10, 64); e == nil {
		secs := 300
		if t, e := strconv.Atoi(q.Get("timeout")); e == nil && t > 0 {
			secs = t
		}
		h.m.WatchSerial(old, time.Duration(secs)*time.Second)
	}
	h.writeJSON(w, h.m.GetInfo())
}

func (h *Handler) getManagerLog(w http.ResponseWriter, r *http.Request) {
	last, _ := strconv.ParseInt(r.URL.Query().Get("last"), 10, 64)
	recs, id := h.m.GetLog(last)
	w.Header().Set("Etag", strconv.FormatInt(id, 10))
	h.writeJSON(w, recs)
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	insts := h.m.Instances()
	l := make([]string, 0, len(insts))
	for _, s := range insts {
		l = append(l, s.Name())
	}
	sort.Strings(l)
	h.writeJSON(w, l)
}

func (h *Handler) findInstance(name string) (*hookvisor.Instance, *Error) {
	for _, s := range h.m.Instances() {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, &Error{http.StatusNotFound, "Instance not found"}
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["instance"]
	s, e := h.findInstance(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	info := &InstanceInfo{
		Name:         s.Name(),
		State:        s.State().String(),
		Enabled:      s.Enabled(),
		Running:      s.Running(),
		Failed:       s.Failed(),
		RestartCount: s.RestartCount(),
		MemoryBytes:  s.LastMemory(),
	}
	if hdl, live := s.Handle(); live {
		info.PID = hdl.PID
		info.StartedAt = hdl.StartedAt
	}
	info.Status, info.TimeStamp = s.Status()
	h.writeJSON(w, info)
}

func (h *Handler) instanceOp(op func(*hookvisor.Instance) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["instance"]
		s, e := h.findInstance(name)
		if e != nil {
			h.writeError(w, e)
			return
		}
		if err := op(s); err != nil {
			h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
			return
		}
		h.writeJSON(w, ok)
	}
}

func (h *Handler) getInstanceLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["instance"]
	s, e := h.findInstance(name)
	if e != nil {
		h.writeError(w, e)
		return
	}
	h.writeJSON(w, s.GetLog())
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// NewHandler builds the HTTP surface over a manager.
func NewHandler(m *hookvisor.Manager) *Handler {
	r := mux.NewRouter()
	h := &Handler{m: m, r: r}
	r.HandleFunc("/manager", h.getManager).Methods("GET")
	r.HandleFunc("/manager/log", h.getManagerLog).Methods("GET")
	r.HandleFunc("/instances", h.listInstances).Methods("GET")
	r.HandleFunc("/instances/{instance}", h.getInstance).Methods("GET")
	r.HandleFunc("/instances/{instance}/enable",
		h.instanceOp((*hookvisor.Instance).Enable)).Methods("POST")
	r.HandleFunc("/instances/{instance}/disable",
		h.instanceOp((*hookvisor.Instance).Disable)).Methods("POST")
	r.HandleFunc("/instances/{instance}/restart",
		h.instanceOp((*hookvisor.Instance).Restart)).Methods("POST")
	r.HandleFunc("/instances/{instance}/clear",
		h.instanceOp(func(s *hookvisor.Instance) error {
			s.Clear()
			return nil
		})).Methods("POST")
	r.HandleFunc("/instances/{instance}/log", h.getInstanceLog).Methods("GET")
	return h
}
