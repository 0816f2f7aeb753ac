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

package trap

import (
	"reflect"

	"polyhal.dev/hal/pkg/addr"
)

// framePhys returns the physical address of the frame f points to.
func (m *Machine) framePhys(f Frame) (addr.PhysAddr, bool) {
	v := reflect.ValueOf(f)
	if v.Kind() != reflect.Pointer {
		return 0, false
	}
	return m.cfg.Memory.PhysFor(v.UnsafePointer())
}
