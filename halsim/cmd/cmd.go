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

// Package cmd holds implementations of the halsim commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/boot"
	"polyhal.dev/hal/pkg/config"
	"polyhal.dev/hal/pkg/log"
	"polyhal.dev/hal/pkg/memregion"
	"polyhal.dev/hal/pkg/trap"
)

// Output is where commands write their results.
var Output io.Writer = os.Stdout

// failure reports err and returns the failure status.
func failure(err error) subcommands.ExitStatus {
	log.Warningf("%v", err)
	fmt.Fprintf(os.Stderr, "halsim: %v\n", err)
	return subcommands.ExitFailure
}

// configFrom returns the configuration passed to Execute.
func configFrom(args []any) *config.Config {
	if len(args) > 0 {
		if c, ok := args[0].(*config.Config); ok {
			return c
		}
	}
	return config.Default()
}

// memoryMap returns the configured board's memory map.
func memoryMap(conf *config.Config) (*memregion.Set, error) {
	b := config.DefaultBoard(conf)
	if conf.Board != "" {
		var err error
		if b, err = config.LoadBoard(conf.Board); err != nil {
			return nil, err
		}
	}
	return b.MemoryMap()
}

// lookupArch returns the architecture named by override, or by the
// configuration if override is empty.
func lookupArch(conf *config.Config, override string) (arch.Arch, error) {
	if override != "" {
		return arch.Lookup(override)
	}
	return arch.Lookup(conf.Arch)
}

// bootConfig returns a boot configuration for a with cores cores.
func bootConfig(conf *config.Config, a arch.Arch, cores int, hooks trap.Handler) (boot.Config, error) {
	regions, err := memoryMap(conf)
	if err != nil {
		return boot.Config{}, err
	}
	return boot.Config{
		Arch:             a,
		Regions:          regions,
		Cores:            cores,
		StaticPerCPUSize: conf.StaticPerCPUSize,
		StackPages:       conf.StackPages,
		TimerInterval:    conf.TimerInterval,
		Hooks:            hooks,
		Timeout:          conf.Bringup.Timeout.Duration,
		MaxInterval:      conf.Bringup.MaxInterval.Duration,
	}, nil
}

// bootMachine boots a machine with a private loader.
func bootMachine(ctx context.Context, cfg boot.Config) (*boot.Machine, error) {
	var l boot.Loader
	start := time.Now()
	m, err := l.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("booting %s: %w", cfg.Arch.Name(), err)
	}
	log.Debugf("%s: booted %d cores in %v", cfg.Arch.Name(), cfg.Cores, time.Since(start))
	return m, nil
}
