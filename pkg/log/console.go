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

// CharSink is a byte-at-a-time output device, such as a UART.
type CharSink interface {
	PutChar(c byte)
}

// ConsoleWriter is an io.Writer that drains bytes into a CharSink. Line
// feeds are expanded to CR LF as serial consoles expect.
type ConsoleWriter struct {
	Sink CharSink
}

// Write implements io.Writer.Write.
func (w ConsoleWriter) Write(data []byte) (int, error) {
	for _, c := range data {
		if c == '\n' {
			w.Sink.PutChar('\r')
		}
		w.Sink.PutChar(c)
	}
	return len(data), nil
}
