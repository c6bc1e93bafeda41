// Command ci-unpack is the generator half of the pipeline: it classifies,
// recursively unpacks, and serializes every INPUT into the framed record
// stream described in the external-interfaces contract.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github/sabouaram/ci-unpack/internal/diskstat"
	"github/sabouaram/ci-unpack/internal/exitcode"
	"github/sabouaram/ci-unpack/internal/frame"
	"github/sabouaram/ci-unpack/internal/log"
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/tee"
	"github/sabouaram/ci-unpack/internal/unpack"
)

func main() {
	exitcode.Exit("ci-unpack", newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var verbose, quiet int
	var listOnly bool
	var maxDepth int

	cmd := &cobra.Command{
		Use:           "ci-unpack INPUT...",
		Short:         "Recursively classify archives and emit a flat record stream",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := log.Clamp(1 + verbose - quiet)
			logger := log.New(cmd.ErrOrStderr(), v)

			ctrl := unpack.New(cmd.OutOrStdout(), unpack.Options{
				MaxDepth: maxDepth,
				ListOnly: listOnly,
			}, logger)

			for _, input := range args {
				if err := processInput(ctrl, input); err != nil {
					return fmt.Errorf("%s: %w", input, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().CountVarP(&verbose, "verbose", "v", "raise verbosity (repeatable)")
	cmd.Flags().CountVarP(&quiet, "quiet", "q", "lower verbosity (repeatable)")
	cmd.Flags().BoolVarP(&listOnly, "list", "t", false, "suppress payload emission; metadata records only")
	cmd.Flags().IntVarP(&maxDepth, "max-depth", "d", unpack.DefaultMaxDepth, "recursion depth limit")

	return cmd
}

func processInput(ctrl *unpack.Controller, path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return emitNonRegular(ctrl, path, fi, func() (string, error) { return os.Readlink(path) })
	case fi.IsDir():
		return walkDir(ctrl, path)
	case fi.Mode().IsRegular():
		return unpackFile(ctrl, path, fi)
	default:
		return emitNonRegular(ctrl, path, fi, nil)
	}
}

// walkDir traverses path via os.Root so symlinked escapes out of the tree
// can't redirect the walk outside it. Every regular file starts its own
// recursion; every other entry is a metadata-only record.
func walkDir(ctrl *unpack.Controller, base string) error {
	root, err := os.OpenRoot(base)
	if err != nil {
		return err
	}
	defer root.Close()

	return fs.WalkDir(root.FS(), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}

		full := filepath.Join(base, rel)

		if info.Mode().IsRegular() {
			return unpackFile(ctrl, full, info)
		}
		return emitNonRegular(ctrl, full, info, func() (string, error) { return os.Readlink(full) })
	})
}

func unpackFile(ctrl *unpack.Controller, path string, fi os.FileInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	t := tee.NewBufReaderTee(f)
	defer t.Close()

	fr := frame.Root(path)
	fr.Meta = diskstat.Build(fi)
	fr.Meta.Type = meta.ItemType{Kind: meta.ItemRegularFile}

	return ctrl.Unpack(t, fr)
}

func emitNonRegular(ctrl *unpack.Controller, path string, fi os.FileInfo, readlink func() (string, error)) error {
	if readlink == nil {
		readlink = func() (string, error) { return "", nil }
	}

	fr := frame.Root(path)
	fr.Meta = diskstat.Build(fi)
	fr.Meta.Type = diskstat.ItemType(fi, readlink)

	return ctrl.EmitMetadataOnly(fr)
}
