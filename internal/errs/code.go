/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package errs is a scoped-down sibling of nabbar/golib's errors package:
// numeric error codes, parent chaining, and the constructing caller's
// file and line, without
// the gin-gonic response integration (this module has no HTTP surface).
package errs

import (
	"fmt"
	"runtime"
	"sync"
)

// CodeError is a numeric classification for an Error, similar in spirit to
// an HTTP status code. Packages reserve their own block of codes starting
// at a package-specific base and register a Message function for it.
type CodeError uint16

// Message maps a CodeError to its human-readable text.
type Message func(code CodeError) string

const (
	// UnknownError is the zero-value code: an Error created without a
	// registered message.
	UnknownError CodeError = iota
	// MinPkgCode is the first code available for package-local blocks.
	MinPkgCode CodeError = 100
)

var (
	mu       sync.RWMutex
	messages = map[CodeError]Message{}
)

// RegisterMessages associates a Message function with every code in
// [base, base+count). Panics if any of those codes is already registered,
// mirroring the teacher's collision-detection init() pattern.
func RegisterMessages(base CodeError, count int, fn Message) {
	mu.Lock()
	defer mu.Unlock()

	for c := base; c < base+CodeError(count); c++ {
		if _, ok := messages[c]; ok {
			panic(fmt.Errorf("errs: code %d already registered", c))
		}
		messages[c] = fn
	}
}

// Uint16 returns the underlying numeric value.
func (c CodeError) Uint16() uint16 {
	return uint16(c)
}

func (c CodeError) String() string {
	mu.RLock()
	fn, ok := messages[c]
	mu.RUnlock()

	if !ok || fn == nil {
		return fmt.Sprintf("unregistered error code %d", uint16(c))
	}
	return fn(c)
}

// Error builds a new Error carrying this code, wrapping parent if non-nil.
func (c CodeError) Error(parent error) Error {
	return newErr(c, c.String(), parent)
}

// Errorf builds a new Error carrying this code with a formatted message
// appended to the registered one.
func (c CodeError) Errorf(format string, args ...interface{}) Error {
	return newErr(c, c.String()+": "+fmt.Sprintf(format, args...), nil)
}

// IfError returns nil if every given error is nil, otherwise an Error
// carrying this code with the first non-nil error as parent.
func (c CodeError) IfError(e ...error) Error {
	for _, err := range e {
		if err != nil {
			return newErr(c, c.String(), err)
		}
	}
	return nil
}

func newErr(code CodeError, msg string, parent error) Error {
	e := &ers{
		code: code,
		msg:  msg,
	}
	if parent != nil {
		e.parent = []error{parent}
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		e.file = file
		e.line = line
	}

	return e
}
