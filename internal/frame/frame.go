// Package frame holds the per-recursion-level scratch state: the path
// stack, depth, in-progress metadata, and a one-shot emission guard.
package frame

import (
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/pathstack"
)

// Frame is the mutable scratch for one recursion level. It is created once
// per entry (or the top-level input), filled in by the adapter and
// controller, then consumed by the emission sink exactly once.
type Frame struct {
	Path    *pathstack.Stack
	Depth   int
	Meta    meta.Metadata
	emitted bool
}

// Root creates the top-level frame for a single input path.
func Root(name string) *Frame {
	return &Frame{Path: pathstack.Head(name), Depth: 0}
}

// Child derives a new frame one level deeper, with name appended to the
// path stack. The child's Meta starts zero-valued; callers fill it in
// from the adapter's entry metadata.
func (f *Frame) Child(name string) *Frame {
	return &Frame{Path: f.Path.Push(name), Depth: f.Depth + 1}
}

// MarkEmitted records that this frame has produced its one allowed
// emission; CanEmit then returns false for any further attempt.
func (f *Frame) MarkEmitted() {
	f.emitted = true
}

// CanEmit reports whether this frame has not yet been emitted.
func (f *Frame) CanEmit() bool {
	return !f.emitted
}
