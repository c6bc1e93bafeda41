package unpack_test

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"hash/crc32"
	"io"
	"testing"

	dsbzip2 "github.com/dsnet/compress/bzip2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/ci-unpack/internal/frame"
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/sink"
	"github/sabouaram/ci-unpack/internal/tee"
	"github/sabouaram/ci-unpack/internal/unpack"
)

func TestUnpack(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "unpack suite")
}

// decoded pairs a Record with its fully-drained payload bytes (nil if the
// record carried none).
type decoded struct {
	Record  sink.Record
	Payload []byte
}

func decodeAll(data []byte) []decoded {
	dec := sink.NewDecoder(bytes.NewReader(data))
	var out []decoded

	for {
		rec, payload, err := dec.Next()
		if err == io.EOF {
			break
		}
		Expect(err).ToNot(HaveOccurred())

		var b []byte
		if rec.ContentFollows {
			b, err = io.ReadAll(payload)
			Expect(err).ToNot(HaveOccurred())
		}
		out = append(out, decoded{Record: rec, Payload: b})
	}

	return out
}

func newTopTee(data []byte) tee.Tee {
	return tee.NewBufReaderTee(bytes.NewReader(data))
}

func unpackBytes(data []byte, name string) []decoded {
	var buf bytes.Buffer
	ctrl := unpack.New(&buf, unpack.Options{MaxDepth: unpack.DefaultMaxDepth}, nil)

	fr := frame.Root(name)
	Expect(ctrl.Unpack(newTopTee(data), fr)).To(Succeed())

	return decodeAll(buf.Bytes())
}

// buildSimpleTar produces a tar containing the directory tree and files
// described in the "simple.tar" end-to-end scenario: a/, a/b/, a/b/c/,
// a/bar (9 bytes) and foo (9 bytes, identical content to a/bar).
func buildSimpleTar(content []byte) []byte {
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)

	dirs := []string{"a/", "a/b/", "a/b/c/"}
	for _, d := range dirs {
		Expect(w.WriteHeader(&tar.Header{Name: d, Typeflag: tar.TypeDir, Mode: 0o755})).To(Succeed())
	}

	for _, name := range []string{"a/bar", "foo"} {
		Expect(w.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		})).To(Succeed())
		_, err := w.Write(content)
		Expect(err).ToNot(HaveOccurred())
	}

	Expect(w.Close()).To(Succeed())
	return buf.Bytes()
}

func gzipOf(data []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	Expect(err).ToNot(HaveOccurred())
	Expect(w.Close()).To(Succeed())
	return buf.Bytes()
}

func crc32c(b []byte) uint32 {
	return crc32.Checksum(b, crc32.MakeTable(crc32.Castagnoli))
}

var _ = Describe("TC-UP-001: recursive unpacking", func() {
	content := []byte("123456789") // 9 bytes, per the simple.tar scenario

	Describe("TC-UP-002: simple.tar", func() {
		It("TC-UP-003: emits 5 records with the expected types, sizes and paths", func() {
			recs := unpackBytes(buildSimpleTar(content), "simple.tar")
			Expect(recs).To(HaveLen(5))

			byPath := map[string]decoded{}
			for _, d := range recs {
				Expect(d.Record.Paths[0]).To(Equal("simple.tar"))
				byPath[d.Record.Paths[len(d.Record.Paths)-1]] = d
			}

			for _, dirName := range []string{"a/", "a/b/", "a/b/c/"} {
				d, ok := byPath[dirName]
				Expect(ok).To(BeTrue(), "missing directory entry %q", dirName)
				Expect(d.Record.Type.Kind).To(Equal(meta.ItemDirectory))
				Expect(d.Record.Len).To(BeZero())
				Expect(d.Record.Container.Kind).To(Equal(meta.Included))
			}

			want := crc32c(content)
			for _, fileName := range []string{"a/bar", "foo"} {
				d, ok := byPath[fileName]
				Expect(ok).To(BeTrue(), "missing file entry %q", fileName)
				Expect(d.Record.Type.Kind).To(Equal(meta.ItemRegularFile))
				Expect(d.Record.Len).To(Equal(uint64(9)))
				Expect(crc32c(d.Payload)).To(Equal(want))
				Expect(d.Record.Container.Kind).To(Equal(meta.Included))
			}
		})
	})

	Describe("TC-UP-004: simple.tar.gz", func() {
		It("TC-UP-005: emits the same 5 records with an extra outer path component", func() {
			tarBytes := buildSimpleTar(content)
			recs := unpackBytes(gzipOf(tarBytes), "simple.tar.gz")
			Expect(recs).To(HaveLen(5))

			for _, d := range recs {
				Expect(d.Record.Paths).To(HaveLen(3))
				Expect(d.Record.Paths[1]).To(Equal("simple.tar"))
				Expect(d.Record.Paths[0]).To(Equal("simple.tar.gz"))
			}
		})
	})

	Describe("TC-UP-006: byte_flip.tar.bz2 (bz2 wrapping a broken tar)", func() {
		It("TC-UP-007: rolls the whole container back to one opaque leaf", func() {
			tarBytes := buildSimpleTar(content)
			// corrupt a byte well inside the first header so tar parsing fails.
			tarBytes[200] ^= 0xFF

			var buf bytes.Buffer
			bw, err := dsbzip2.NewWriter(&buf, nil)
			Expect(err).ToNot(HaveOccurred())
			_, err = bw.Write(tarBytes)
			Expect(err).ToNot(HaveOccurred())
			Expect(bw.Close()).To(Succeed())
			bz2Bytes := buf.Bytes()

			recs := unpackBytes(bz2Bytes, "byte_flip.tar.bz2")
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Record.Paths).To(Equal([]string{"byte_flip.tar.bz2"}))
			Expect(recs[0].Record.Container.Kind).To(Equal(meta.Unrecognised))
			Expect(recs[0].Payload).To(Equal(bz2Bytes))

			// sanity: the corrupted stream really doesn't decode as a clean tar.
			_, derr := tar.NewReader(bzip2.NewReader(bytes.NewReader(bz2Bytes))).Next()
			Expect(derr).To(HaveOccurred())
		})
	})

	Describe("TC-UP-008: byte_flip.tar.gz (gzip trailer mismatch after partial success)", func() {
		It("TC-UP-009: emits the good tar entries plus one extra rollback leaf", func() {
			tarBytes := buildSimpleTar(content)
			gz := gzipOf(tarBytes)

			// Flip a byte in the 8-byte CRC32/ISIZE trailer so the tar body
			// decodes cleanly but the trailer check fails on full drain.
			gz[len(gz)-1] ^= 0xFF

			recs := unpackBytes(gz, "byte_flip.tar.gz")

			// 5 good tar members plus one rollback leaf for the whole gzip.
			Expect(recs).To(HaveLen(6))

			var leaf *decoded
			for i := range recs {
				if len(recs[i].Record.Paths) == 1 {
					leaf = &recs[i]
				}
			}
			Expect(leaf).ToNot(BeNil())
			Expect(leaf.Record.Paths).To(Equal([]string{"byte_flip.tar.gz"}))
			Expect(leaf.Record.Container.Kind).To(Equal(meta.Unrecognised))
			Expect(leaf.Payload).To(Equal(gz))
		})
	})

	Describe("TC-UP-010: opaque input", func() {
		It("TC-UP-011: emits exactly one leaf byte-equal to the input", func() {
			data := []byte("not a recognised container format at all")
			recs := unpackBytes(data, "plain.bin")

			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Record.Paths).To(Equal([]string{"plain.bin"}))
			Expect(recs[0].Payload).To(Equal(data))
			Expect(recs[0].Record.Container.Kind).To(Equal(meta.Unrecognised))
		})
	})

	Describe("TC-UP-012: depth-limited recursion", func() {
		It("TC-UP-013: a stream reached at max_depth is emitted as opaque", func() {
			// MaxDepth 1 lets the controller look at the gzip layer (depth 0)
			// but forbids recursing into the tar it contains (depth 1), so the
			// whole gzip stream rolls back to a single opaque leaf.
			gz := gzipOf(buildSimpleTar(content))

			var buf bytes.Buffer
			ctrl := unpack.New(&buf, unpack.Options{MaxDepth: 1}, nil)
			fr := frame.Root("simple.tar.gz")
			Expect(ctrl.Unpack(newTopTee(gz), fr)).To(Succeed())

			recs := decodeAll(buf.Bytes())
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Record.Paths).To(Equal([]string{"simple.tar.gz"}))
			Expect(recs[0].Record.Container.Kind).To(Equal(meta.Unrecognised))
			Expect(recs[0].Payload).To(Equal(gz))
		})
	})
})
