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

package log

import (
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Epoch is the time from which KernelEmitter measures uptime.
var Epoch = time.Now()

// KernelEmitter emits logs the way a kernel console does, stamped with the
// time since Epoch:
//
//	L[sssss.uuuuuu] file:line] msg
//
// where L is the level (D, I or W).
type KernelEmitter struct {
	// Emitter is the underlying emitter.
	Emitter
}

// header is an inline buffer for the line prefix.
type header struct {
	local [96]byte
	data  []byte
}

func (h *header) write(c byte) {
	h.data = append(h.data, c)
}

func (h *header) writeString(s string) {
	h.data = append(h.data, s...)
}

// writePadded writes v right aligned in width columns.
func (h *header) writePadded(v int64, width int) {
	var digits [20]byte
	d := strconv.AppendInt(digits[:0], v, 10)
	for i := len(d); i < width; i++ {
		h.write(' ')
	}
	h.data = append(h.data, d...)
}

func (h *header) writeMicros(v int64) {
	for div := int64(100000); div > 0; div /= 10 {
		h.write('0' + byte(v/div%10))
	}
}

var levelChars = [...]byte{Warning: 'W', Info: 'I', Debug: 'D'}

// Emit implements Emitter.Emit.
func (k KernelEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	h := header{}
	h.data = h.local[:0]

	if int(level) < len(levelChars) {
		h.write(levelChars[level])
	} else {
		h.write('?')
	}

	up := timestamp.Sub(Epoch)
	if up < 0 {
		up = 0
	}
	h.write('[')
	h.writePadded(int64(up/time.Second), 5)
	h.write('.')
	h.writeMicros(int64(up%time.Second) / int64(time.Microsecond))
	h.writeString("] ")

	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		if slash := strings.LastIndexByte(file, '/'); slash >= 0 {
			file = file[slash+1:]
		}
		h.writeString(file)
		h.write(':')
		h.data = strconv.AppendInt(h.data, int64(line), 10)
	} else {
		h.writeString("x:0")
	}
	h.writeString("] ")

	k.Emitter.Emit(depth+1, level, timestamp, string(h.data)+format+"\n", args...)
}
