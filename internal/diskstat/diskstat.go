// Package diskstat translates an os.FileInfo from the CLI's disk-tree walk
// into this module's meta.Metadata, the one stat-to-metadata conversion the
// corpus has no library for: every other adapter derives metadata from its
// own container format's native fields, not from a host os.FileInfo.
package diskstat

import (
	"os"
	"syscall"

	"github/sabouaram/ci-unpack/internal/meta"
)

// Build derives a Metadata from fi, resolving the owning user/group names
// through the host databases the same way the other adapters do.
func Build(fi os.FileInfo) meta.Metadata {
	m := meta.Metadata{
		MTime: meta.NormalizeSeconds(fi.ModTime().Unix()),
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return m
	}

	m.ATime = meta.NormalizeSeconds(int64(st.Atim.Sec)) //nolint:unconvert
	m.CTime = meta.NormalizeSeconds(int64(st.Ctim.Sec))

	m.Ownership = meta.Ownership{
		Kind:  meta.OwnershipPosix,
		Mode:  uint32(st.Mode),
		User:  meta.ResolvePrincipal(uint64(st.Uid), false),
		Group: meta.ResolvePrincipal(uint64(st.Gid), true),
	}

	return m
}

// ItemType derives the entry's ItemType from fi's mode, reading the
// symlink target and device numbers where the variant needs them.
func ItemType(fi os.FileInfo, readlink func() (string, error)) meta.ItemType {
	mode := fi.Mode()

	switch {
	case mode.IsDir():
		return meta.ItemType{Kind: meta.ItemDirectory}
	case mode&os.ModeSymlink != 0:
		target, _ := readlink()
		return meta.ItemType{Kind: meta.ItemSymbolicLink, LinkTarget: target}
	case mode&os.ModeNamedPipe != 0:
		return meta.ItemType{Kind: meta.ItemFifo}
	case mode&os.ModeSocket != 0:
		return meta.ItemType{Kind: meta.ItemSocket}
	case mode&os.ModeDevice != 0:
		major, minor := deviceNumbers(fi)
		kind := meta.ItemBlockDevice
		if mode&os.ModeCharDevice != 0 {
			kind = meta.ItemCharDevice
		}
		return meta.ItemType{Kind: kind, Major: major, Minor: minor}
	case mode.IsRegular():
		return meta.ItemType{Kind: meta.ItemRegularFile}
	default:
		return meta.ItemType{Kind: meta.ItemUnknown}
	}
}

func deviceNumbers(fi os.FileInfo) (major, minor uint32) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	dev := uint64(st.Rdev)
	return uint32((dev >> 8) & 0xfff), uint32(dev&0xff | (dev>>12)&0xfff00)
}
