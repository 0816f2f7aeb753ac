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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"
	"polyhal.dev/hal/pkg/arch"
)

// Archs implements subcommands.Command for the "archs" command.
type Archs struct{}

// Name implements subcommands.Command.Name.
func (*Archs) Name() string {
	return "archs"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Archs) Synopsis() string {
	return "List supported architectures."
}

// Usage implements subcommands.Command.Usage.
func (*Archs) Usage() string {
	return `archs - List supported architectures and their page table formats.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Archs) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Archs) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	w := tabwriter.NewWriter(Output, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tLEVELS\tGLOBAL ROOT\tSPLIT ROOT\tLINEAR MAP\tKERNEL OFFSET\tFRAME SIZE\n")
	for _, name := range arch.Names() {
		a, err := arch.Lookup(name)
		if err != nil {
			return failure(err)
		}
		f := a.Format()
		linear := "window"
		if a.LinearMapInTables() {
			linear = "tables"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%s\t%#x\t%d\n", a.Name(), f.Levels(), f.GlobalRootIndex(), f.SplitRoot(), linear, a.DirectMap().Offset, a.Trap().FrameSize())
	}
	if err := w.Flush(); err != nil {
		return failure(err)
	}
	return subcommands.ExitSuccess
}
