// Command ci-dump prints a human-readable listing of a record stream
// produced by ci-unpack, grounded on original_source/ci-dump/src/main.rs.
package main

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"time"

	"github/sabouaram/ci-unpack/internal/exitcode"
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/sink"
)

func main() {
	exitcode.Exit("ci-dump", run())
}

func run() error {
	dec := sink.NewDecoder(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for {
		rec, payload, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var sum uint32
		if rec.ContentFollows {
			tab := crc32.MakeTable(crc32.Castagnoli)
			buf := make([]byte, 4096)
			limited := io.LimitReader(payload, int64(rec.Len))
			for {
				n, rerr := limited.Read(buf)
				if n > 0 {
					sum = crc32.Update(sum, tab, buf[:n])
				}
				if rerr == io.EOF {
					break
				}
				if rerr != nil {
					return rerr
				}
			}
		}

		printEntry(out, rec, sum)
	}
}

func printEntry(out *bufio.Writer, rec sink.Record, crc uint32) {
	fmt.Fprintln(out, " - paths:")
	for _, p := range rec.Paths {
		fmt.Fprintf(out, "          - %s\n", p)
	}

	fmt.Fprintf(out, "   type:  %s\n", itemTypeName(rec.Type.Kind))

	if rec.Len != 0 {
		fmt.Fprintf(out, "   wrap:  %s\n", containerName(rec.Container.Kind))
		fmt.Fprintf(out, "   data:  %v\n", rec.ContentFollows)
		fmt.Fprintf(out, "   size:  %d\n", rec.Len)
		fmt.Fprintf(out, "   crc:   %08x\n", crc)
	}

	printDate(out, "atime", rec.ATime)
	printDate(out, "mtime", rec.MTime)
	printDate(out, "ctime", rec.CTime)
	printDate(out, "btime", rec.BTime)

	if rec.Ownership.Kind == meta.OwnershipPosix {
		if rec.Ownership.User != nil {
			fmt.Fprintf(out, "   uid:   %d\n", rec.Ownership.User.ID)
			if rec.Ownership.User.Name != "" {
				fmt.Fprintf(out, "   user:  %s\n", rec.Ownership.User.Name)
			}
		}
		if rec.Ownership.Group != nil {
			fmt.Fprintf(out, "   gid:   %d\n", rec.Ownership.Group.ID)
			if rec.Ownership.Group.Name != "" {
				fmt.Fprintf(out, "   group: %s\n", rec.Ownership.Group.Name)
			}
		}
		fmt.Fprintf(out, "   mode:  0%o\n", rec.Ownership.Mode)
	}

	if len(rec.Xattrs) > 0 {
		fmt.Fprintln(out, "   xattrs:")
		for _, x := range rec.Xattrs {
			fmt.Fprintf(out, "     %s: %q\n", x.Name, x.Value)
		}
	}
}

func printDate(out *bufio.Writer, label string, ns uint64) {
	if ns == 0 {
		return
	}
	t := time.Unix(0, int64(ns)).UTC()
	fmt.Fprintf(out, "   %s: %s\n", label, t.Format(time.RFC3339Nano))
}

func itemTypeName(k meta.ItemTypeKind) string {
	switch k {
	case meta.ItemDirectory:
		return "Directory"
	case meta.ItemFifo:
		return "Fifo"
	case meta.ItemSocket:
		return "Socket"
	case meta.ItemSymbolicLink:
		return "SoftLink"
	case meta.ItemHardLink:
		return "HardLink"
	case meta.ItemCharDevice:
		return "CharDevice"
	case meta.ItemBlockDevice:
		return "BlockDevice"
	case meta.ItemRegularFile:
		return "Normal"
	default:
		return "Unknown"
	}
}

func containerName(k meta.ContainerHealthKind) string {
	switch k {
	case meta.Included:
		return "Included"
	case meta.OpenError:
		return "OpenError"
	case meta.ReadError:
		return "ReadError"
	default:
		return "Unrecognised"
	}
}
