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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hookvisor/hookvisor"
)

// Client consumes the REST API served by Handler.
type Client struct {
	base   string
	client *http.Client
}

// NewClient returns a client for a server rooted at base, for example
// "http://127.0.0.1:8321".  A nil http.Client selects the default.
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, client: hc}
}

func (c *Client) url(parts ...string) string {
	u := c.base
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) get(ctx context.Context, u string, v interface{}) error {
	req, e := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if e != nil {
		return e
	}
	return c.do(req, v)
}

func (c *Client) post(ctx context.Context, u string) error {
	req, e := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if e != nil {
		return e
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, v interface{}) error {
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return e
	}
	if res.StatusCode != http.StatusOK {
		re := &Error{}
		if json.Unmarshal(body, re) == nil && re.Message != "" {
			return re
		}
		return &Error{Code: res.StatusCode, Message: res.Status}
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(body, v)
}

// ManagerInfo fetches top level manager state.
func (c *Client) ManagerInfo(ctx context.Context) (*hookvisor.ManagerInfo, error) {
	mi := &hookvisor.ManagerInfo{}
	if e := c.get(ctx, c.url("manager"), mi); e != nil {
		return nil, e
	}
	return mi, nil
}

// WatchManager long-polls until the manager serial moves past old, or
// until the server side timeout.  It returns the fresh info.
func (c *Client) WatchManager(ctx context.Context, old int64, secs int) (*hookvisor.ManagerInfo, error) {
	u := c.url("manager") + "?serial=" + strconv.FormatInt(old, 10) +
		"&timeout=" + strconv.Itoa(secs)
	mi := &hookvisor.ManagerInfo{}
	if e := c.get(ctx, u, mi); e != nil {
		return nil, e
	}
	return mi, nil
}

// ManagerLog fetches manager-wide log records newer than last.
func (c *Client) ManagerLog(ctx context.Context, last int64) ([]hookvisor.LogRecord, error) {
	u := c.url("manager", "log") + "?last=" + strconv.FormatInt(last, 10)
	var recs []hookvisor.LogRecord
	if e := c.get(ctx, u, &recs); e != nil {
		return nil, e
	}
	return recs, nil
}

// Instances lists instance names, sorted.
func (c *Client) Instances(ctx context.Context) ([]string, error) {
	var names []string
	if e := c.get(ctx, c.url("instances"), &names); e != nil {
		return nil, e
	}
	return names, nil
}

// InstanceInfo fetches the state of one instance.
func (c *Client) InstanceInfo(ctx context.Context, name string) (*InstanceInfo, error) {
	info := &InstanceInfo{}
	if e := c.get(ctx, c.url("instances", name), info); e != nil {
		return nil, e
	}
	return info, nil
}

// InstanceLog fetches the retained log lines of one instance.
func (c *Client) InstanceLog(ctx context.Context, name string) ([]string, error) {
	var lines []string
	if e := c.get(ctx, c.url("instances", name, "log"), &lines); e != nil {
		return nil, e
	}
	return lines, nil
}

// Enable asks the supervisor to bring the instance up.
func (c *Client) Enable(ctx context.Context, name string) error {
	return c.post(ctx, c.url("instances", name, "enable"))
}

// Disable brings the instance down; it will not be respawned.
func (c *Client) Disable(ctx context.Context, name string) error {
	return c.post(ctx, c.url("instances", name, "disable"))
}

// Restart bounces the instance.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.post(ctx, c.url("instances", name, "restart"))
}

// Clear wipes the instance's failure state.
func (c *Client) Clear(ctx context.Context, name string) error {
	return c.post(ctx, c.url("instances", name, "clear"))
}
