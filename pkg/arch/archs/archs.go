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

// Package archs links every supported architecture into the arch registry.
package archs

import (
	"polyhal.dev/hal/pkg/arch"

	// Supported architectures.
	_ "polyhal.dev/hal/pkg/arch/amd64"
	_ "polyhal.dev/hal/pkg/arch/arm64"
	_ "polyhal.dev/hal/pkg/arch/loong64"
	_ "polyhal.dev/hal/pkg/arch/riscv64"
)

// All returns every registered architecture, ordered by name.
func All() []arch.Arch {
	var out []arch.Arch
	for _, name := range arch.Names() {
		a, err := arch.Lookup(name)
		if err != nil {
			panic(err)
		}
		out = append(out, a)
	}
	return out
}
