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
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// InterpreterNone in the interpreter field requests direct execution of
// the script, with no intermediating runtime.
const InterpreterNone = "none"

// AppManifest is the schema level description of one application, exactly
// as it appears in the configuration file.  Fields that the runtime wants
// parsed (args, max_memory_restart) are kept as their raw strings here so
// that a descriptor can be serialized back to the identical manifest.
type AppManifest struct {
	Name             string            `yaml:"name"`
	Script           string            `yaml:"script"`
	Interpreter      string            `yaml:"interpreter"`
	Args             string            `yaml:"args,omitempty"`
	Cwd              string            `yaml:"cwd"`
	Instances        int               `yaml:"instances"`
	Autorestart      bool              `yaml:"autorestart"`
	Watch            bool              `yaml:"watch"`
	MaxMemoryRestart string            `yaml:"max_memory_restart,omitempty"`
	Env              map[string]string `yaml:"env,omitempty"`
}

// AppDescriptor is the validated, parsed form of a manifest.  Descriptors
// are built once at load time and never mutated afterwards; a config
// reload replaces the whole set.
type AppDescriptor struct {
	Name           string
	Script         string
	Interpreter    string // InterpreterNone for direct execution
	Args           []string
	Cwd            string
	Instances      int
	Autorestart    bool
	Watch          bool
	MaxMemoryBytes uint64 // 0 means no memory ceiling
	Env            map[string]string
}

// Direct reports whether the script is executed without an interpreter.
func (d *AppDescriptor) Direct() bool {
	return d.Interpreter == InterpreterNone
}

type configFile struct {
	Apps []AppManifest `yaml:"apps"`
}

// ParseMemorySize parses a memory ceiling of the form <integer><unit>,
// where unit is one of K, M or G (binary multiples).  Anything else is
// rejected; the ceiling grammar is deliberately strict.
func ParseMemorySize(s string) (uint64, error) {
	if len(s) < 2 {
		return 0, &MalformedConfigError{
			Field:  "max_memory_restart",
			Reason: "must match <integer><unit> with unit K, M or G",
		}
	}
	var mult uint64
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
	case 'M':
		mult = 1 << 20
	case 'G':
		mult = 1 << 30
	default:
		return 0, &MalformedConfigError{
			Field:  "max_memory_restart",
			Reason: "unit must be K, M or G",
		}
	}
	digits := s[:len(s)-1]
	var n uint64
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, &MalformedConfigError{
				Field:  "max_memory_restart",
				Reason: "size must be a positive integer",
			}
		}
		if n > (math.MaxUint64-uint64(c-'0'))/10 {
			return 0, &MalformedConfigError{
				Field:  "max_memory_restart",
				Reason: "size is out of range",
			}
		}
		n = n*10 + uint64(c-'0')
	}
	if n == 0 {
		return 0, &MalformedConfigError{
			Field:  "max_memory_restart",
			Reason: "size must be positive",
		}
	}
	if n > math.MaxUint64/mult {
		return 0, &MalformedConfigError{
			Field:  "max_memory_restart",
			Reason: "size is out of range",
		}
	}
	return n * mult, nil
}

// FormatMemorySize renders a byte count back into the <integer><unit>
// form, using the largest unit that divides it evenly.  This is the
// inverse of ParseMemorySize for any value that parser can produce.
func FormatMemorySize(b uint64) string {
	if b == 0 {
		return ""
	}
	switch {
	case b%(1<<30) == 0:
		return strconv.FormatUint(b>>30, 10) + "G"
	case b%(1<<20) == 0:
		return strconv.FormatUint(b>>20, 10) + "M"
	default:
		return strconv.FormatUint(b>>10, 10) + "K"
	}
}

// Descriptor validates the manifest and produces its parsed form.
func (m *AppManifest) Descriptor() (*AppDescriptor, error) {
	bad := func(field, reason string) error {
		return &MalformedConfigError{App: m.Name, Field: field, Reason: reason}
	}
	if m.Name == "" {
		return nil, bad("name", "must not be empty")
	}
	if m.Script == "" {
		return nil, bad("script", "must not be empty")
	}
	if m.Interpreter == "" {
		return nil, bad("interpreter", "must name a runtime, or \"none\"")
	}
	if m.Cwd == "" {
		return nil, bad("cwd", "must not be empty")
	}
	if m.Instances < 1 {
		return nil, bad("instances", "must be at least 1")
	}
	d := &AppDescriptor{
		Name:        m.Name,
		Script:      m.Script,
		Interpreter: m.Interpreter,
		Cwd:         m.Cwd,
		Instances:   m.Instances,
		Autorestart: m.Autorestart,
		Watch:       m.Watch,
	}
	if m.Args != "" {
		d.Args = strings.Fields(m.Args)
	}
	if m.MaxMemoryRestart != "" {
		sz, e := ParseMemorySize(m.MaxMemoryRestart)
		if e != nil {
			var mce *MalformedConfigError
			if errors.As(e, &mce) {
				mce.App = m.Name
			}
			return nil, e
		}
		d.MaxMemoryBytes = sz
	}
	if len(m.Env) != 0 {
		d.Env = make(map[string]string, len(m.Env))
		for k, v := range m.Env {
			d.Env[k] = v
		}
	}
	return d, nil
}

// Manifest serializes a descriptor back into its schema form.
func (d *AppDescriptor) Manifest() AppManifest {
	m := AppManifest{
		Name:             d.Name,
		Script:           d.Script,
		Interpreter:      d.Interpreter,
		Args:             strings.Join(d.Args, " "),
		Cwd:              d.Cwd,
		Instances:        d.Instances,
		Autorestart:      d.Autorestart,
		Watch:            d.Watch,
		MaxMemoryRestart: FormatMemorySize(d.MaxMemoryBytes),
	}
	if len(d.Env) != 0 {
		m.Env = make(map[string]string, len(d.Env))
		for k, v := range d.Env {
			m.Env[k] = v
		}
	}
	return m
}

// LoadConfig parses a YAML configuration and returns one descriptor per
// configured application, preserving declared order.  The parse has no
// side effects; on any validation failure the whole load is rejected.
func LoadConfig(r io.Reader) ([]*AppDescriptor, error) {
	data, e := io.ReadAll(r)
	if e != nil {
		return nil, e
	}
	var cf configFile
	if e := yaml.UnmarshalWithOptions(data, &cf, yaml.Strict()); e != nil {
		return nil, &MalformedConfigError{Field: "apps", Reason: e.Error()}
	}
	seen := make(map[string]bool, len(cf.Apps))
	rv := make([]*AppDescriptor, 0, len(cf.Apps))
	for i := range cf.Apps {
		d, e := cf.Apps[i].Descriptor()
		if e != nil {
			return nil, e
		}
		if seen[d.Name] {
			return nil, &MalformedConfigError{
				App:    d.Name,
				Field:  "name",
				Reason: "duplicate application name",
			}
		}
		seen[d.Name] = true
		rv = append(rv, d)
	}
	return rv, nil
}

// LoadConfigFile is LoadConfig over a file path.
func LoadConfigFile(path string) ([]*AppDescriptor, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	return LoadConfig(f)
}

// SaveConfig writes descriptors back out as YAML, in order.  Loading the
// result yields descriptors equal to the input.
func SaveConfig(w io.Writer, apps []*AppDescriptor) error {
	cf := configFile{Apps: make([]AppManifest, 0, len(apps))}
	for _, d := range apps {
		cf.Apps = append(cf.Apps, d.Manifest())
	}
	data, e := yaml.Marshal(&cf)
	if e != nil {
		return e
	}
	_, e = w.Write(data)
	return e
}
