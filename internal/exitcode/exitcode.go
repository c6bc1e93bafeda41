// Package exitcode turns a command's terminal error into a numbered,
// registered message and a process exit status, grounded on nabbar-golib's
// own cobra-plus-errors wiring: a CodeError doubles as both the printed
// message and the status the process exits with.
package exitcode

import (
	"fmt"
	"os"

	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/errs"
)

const (
	// Format is returned when the failing error classifies as
	// errclass.OtherFormatError: the classifier gave up on the input, not
	// the process.
	Format = errs.CodeError(100)
	// Internal covers everything else: bad arguments, I/O failures,
	// anything errclass.Classify falls back to Fatal for.
	Internal = errs.CodeError(101)
)

func init() {
	errs.RegisterMessages(Format, 1, func(errs.CodeError) string {
		return "unrecognised or malformed archive content"
	})
	errs.RegisterMessages(Internal, 1, func(errs.CodeError) string {
		return "internal error"
	})
}

// Exit prints prog and err to stderr, classified and coded via errs, then
// terminates the process with that code's numeric value as exit status.
// A nil err is a no-op.
func Exit(prog string, err error) {
	if err == nil {
		return
	}

	code := Internal
	if errclass.Classify(err) == errclass.OtherFormatError {
		code = Format
	}

	wrapped := code.Error(err)
	fmt.Fprintf(os.Stderr, "%s: %s\n", prog, wrapped)
	os.Exit(int(wrapped.GetCode().Uint16()))
}
