// Command ci-pipe consumes the record stream produced by ci-unpack and
// execs a subprocess per payload-carrying entry, piping that entry's
// content to the subprocess's stdin with TAR_REALNAME/TAR_FILENAME/TAR_SIZE
// set in its environment — grounded on original_source/ci-pipe/src/main.rs.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github/sabouaram/ci-unpack/internal/exitcode"
	"github/sabouaram/ci-unpack/internal/sink"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "ci-pipe: usage: ci-pipe COMMAND [ARGS...]")
		os.Exit(1)
	}

	exitcode.Exit("ci-pipe", run(os.Args[1:]))
}

func run(cmd []string) error {
	dec := sink.NewDecoder(os.Stdin)

	for {
		rec, payload, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err := processEntry(cmd, rec, payload); err != nil {
			return err
		}
	}
}

func processEntry(cmd []string, rec sink.Record, payload io.Reader) error {
	if !rec.ContentFollows {
		if payload != nil {
			_, _ = io.Copy(io.Discard, payload)
		}
		return nil
	}

	c := exec.Command(cmd[0], cmd[1:]...)
	c.Env = append(os.Environ(),
		"TAR_REALNAME="+realname(rec.Paths),
		"TAR_FILENAME="+rec.Paths[0],
		"TAR_SIZE="+strconv.FormatUint(rec.Len, 10),
	)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	stdin, err := c.StdinPipe()
	if err != nil {
		return err
	}

	if err := c.Start(); err != nil {
		return err
	}

	if _, err := io.CopyN(stdin, payload, int64(rec.Len)); err != nil {
		stdin.Close()
		return fmt.Errorf("copying payload to %s: %w", cmd[0], err)
	}
	if err := stdin.Close(); err != nil {
		return err
	}

	return c.Wait()
}

// realname joins paths innermost-first, per §6's own prose: "joined path
// (innermost-first with `/ /` separator)". The original's join_backwards
// helper loops with bounds that look off-by-one against that same prose;
// re-derived directly from the spec text instead.
func realname(paths []string) string {
	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[len(paths)-1-i] = p
	}
	return strings.Join(parts, " / ")
}
