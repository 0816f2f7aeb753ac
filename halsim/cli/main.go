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

// Package cli is the main entrypoint for halsim.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"polyhal.dev/hal/halsim/cmd"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/config"
	"polyhal.dev/hal/pkg/log"
)

var (
	configPath = flag.String("config", "", "path to the TOML configuration file.")
	debug      = flag.Bool("debug", false, "enable debug logging.")
	logFormat  = flag.String("log-format", "", "log format: text, json, json-k8s or logrus. Overrides the configuration.")
	debugLog   = flag.String("debug-log", "", "additional location for debug logs. %ARCH%, %COMMAND% and %TIMESTAMP% are expanded.")
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	conf, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "halsim: %v\n", err)
		os.Exit(128)
	}
	if err := setupLogging(conf); err != nil {
		fmt.Fprintf(os.Stderr, "halsim: %v\n", err)
		os.Exit(128)
	}

	const delimString = `**************** halsim ****************`
	log.Infof(delimString)
	log.Infof("%s, %s/%s, architectures %v", runtime.Version(), runtime.GOOS, runtime.GOARCH, arch.Names())
	log.Infof("Args: %v", os.Args)
	log.Infof("Config: arch %s, %d cores, memory [%#x, +%#x), board %q", conf.Arch, conf.Cores, conf.Memory.Base, conf.Memory.Size, conf.Board)
	log.Infof(delimString)

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}

// forEachCmd invokes the passed callback for each command supported by
// halsim.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Boot), "")
	cb(new(cmd.PageTable), "")
	cb(new(cmd.Trap), "")

	const helperGroup = "helpers"
	cb(new(cmd.Archs), helperGroup)
}

func loadConfig() (*config.Config, error) {
	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *debug {
		conf.Log.Level = "debug"
	}
	if *logFormat != "" {
		conf.Log.Format = *logFormat
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func newEmitter(format string, level log.Level, w io.Writer) (log.Emitter, error) {
	if format == "logrus" {
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(log.LogrusLevel(level))
		return log.LogrusEmitter{Logger: l}, nil
	}
	return log.NewEmitter(format, &log.Writer{Next: w})
}

func setupLogging(conf *config.Config) error {
	level, err := log.ParseLevel(conf.Log.Level)
	if err != nil {
		return err
	}
	var emitters log.MultiEmitter
	e, err := newEmitter(conf.Log.Format, level, os.Stderr)
	if err != nil {
		return err
	}
	emitters = append(emitters, e)

	if *debugLog != "" {
		f, err := log.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, log.PatternOpts{
			Arch:    conf.Arch,
			Command: flag.CommandLine.Arg(0),
			Time:    time.Now(),
		})
		if err != nil {
			return err
		}
		e, err := newEmitter(conf.Log.Format, log.Debug, f)
		if err != nil {
			return err
		}
		emitters = append(emitters, e)
		level = log.Debug
	}

	switch len(emitters) {
	case 1:
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}
	log.SetLevel(level)
	return nil
}
