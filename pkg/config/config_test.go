// Copyright 2026 The PolyHAL Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "hal.toml", `
arch = "x86_64"
cores = 2
timer_interval = 50
stack_pages = 8

[memory]
base = 0x4000_0000
size = 0x100_0000

[log]
level = "debug"
format = "json"

[bringup]
timeout = "2s"
max_interval = "10ms"
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Arch = "x86_64"
	want.Cores = 2
	want.TimerInterval = 50
	want.StackPages = 8
	want.Memory = Memory{Base: 0x4000_0000, Size: 0x100_0000}
	want.Log = Log{Level: "debug", Format: "json"}
	want.Bringup = Bringup{Timeout: Duration{2 * time.Second}, MaxInterval: Duration{10 * time.Millisecond}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if end := got.MemoryEnd(); end != 0x4100_0000 {
		t.Errorf("MemoryEnd() = %v, want 0x41000000", end)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeFile(t, "hal.toml", `
arch = "riscv64"
colour = "blue"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("Load = %v, want unknown key error naming colour", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load of a missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"arch", func(c *Config) { c.Arch = "sparc" }, "unknown architecture"},
		{"no cores", func(c *Config) { c.Cores = 0 }, "cores"},
		{"many cores", func(c *Config) { c.Cores = MaxCores + 1 }, "cores"},
		{"unaligned base", func(c *Config) { c.Memory.Base = 0x8000_0010 }, "not page aligned"},
		{"tiny memory", func(c *Config) { c.Memory.Size = 0x1000 }, "below 1MB"},
		{"static size", func(c *Config) { c.StaticPerCPUSize = 100 }, "static_percpu_size"},
		{"stack", func(c *Config) { c.StackPages = 0 }, "stack_pages"},
		{"timer", func(c *Config) { c.TimerInterval = 0 }, "timer_interval"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"bringup", func(c *Config) { c.Bringup.Timeout = Duration{} }, "bringup"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestValidateAliasAndLogrus(t *testing.T) {
	c := Default()
	c.Arch = "aarch64"
	c.Log.Format = "logrus"
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateReportsAll(t *testing.T) {
	c := Default()
	c.Cores = 0
	c.StackPages = 0
	err := c.Validate()
	if err == nil {
		t.Fatalf("Validate() = nil, want error")
	}
	for _, want := range []string{"cores", "stack_pages"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, missing %q", err, want)
		}
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("Duration = %v, want 1m30s", d.Duration)
	}
	b, err := d.MarshalText()
	if err != nil || string(b) != "1m30s" {
		t.Errorf("MarshalText() = %q, %v, want 1m30s", b, err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Errorf("UnmarshalText(soon) succeeded")
	}
}
