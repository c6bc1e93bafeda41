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

package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error extends the standard error with a numeric code and parent chaining,
// so a caller can ask "is this a Rewind?" without string matching.
type Error interface {
	error

	// IsCode reports whether this error's own code equals code.
	IsCode(code CodeError) bool
	// HasCode reports whether this error or any parent carries code.
	HasCode(code CodeError) bool
	// GetCode returns this error's own code.
	GetCode() CodeError

	// HasParent reports whether any parent error is set.
	HasParent() bool
	// Unwrap exposes the parent chain to errors.Is / errors.As.
	Unwrap() []error

	// Add appends non-nil errors to the parent chain.
	Add(parent ...error)

	// File and Line report where the error was constructed.
	File() string
	Line() int
}

type ers struct {
	code   CodeError
	msg    string
	parent []error
	file   string
	line   int
}

func (e *ers) Error() string {
	if len(e.parent) == 0 {
		return e.msg
	}

	parts := make([]string, 0, len(e.parent)+1)
	parts = append(parts, e.msg)
	for _, p := range e.parent {
		if p != nil {
			parts = append(parts, p.Error())
		}
	}
	return strings.Join(parts, ": ")
}

func (e *ers) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parent {
		var pe Error
		if errors.As(p, &pe) && pe.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) GetCode() CodeError {
	return e.code
}

func (e *ers) HasParent() bool {
	return len(e.parent) > 0
}

func (e *ers) Unwrap() []error {
	return e.parent
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.parent = append(e.parent, p)
		}
	}
}

func (e *ers) File() string {
	return e.file
}

func (e *ers) Line() int {
	return e.line
}

// Is reports whether e wraps a CodeError-carrying error equal to code.
func Is(err error, code CodeError) bool {
	var e Error
	if errors.As(err, &e) {
		return e.HasCode(code)
	}
	return false
}

// As is a thin wrapper over errors.As for the Error interface, kept for
// symmetry with the teacher's liberr.Get helper.
func As(err error) (Error, bool) {
	var e Error
	ok := errors.As(err, &e)
	return e, ok
}

// Wrap annotates err with a plain contextual message, without a code. err
// stays in the chain (%w), so errclass.Classify still sees whatever
// Rewind/OtherFormatError marker err itself carries.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
