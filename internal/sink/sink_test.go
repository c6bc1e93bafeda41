package sink_test

import (
	"bytes"
	"io"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/sink"
)

func TestSink(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "sink suite")
}

var _ = Describe("TC-SK-001: wire record round-trip", func() {
	It("TC-SK-002: encodes and decodes a content-carrying record byte-for-byte", func() {
		rec := sink.Record{
			Paths: []string{"a/bar", "simple.tar"},
			Len:   9,
			MTime: 1700000000000000000,
			Ownership: meta.Ownership{
				Kind:  meta.OwnershipPosix,
				Mode:  0o644,
				User:  &meta.Principal{ID: 1000, Name: "me"},
				Group: &meta.Principal{ID: 1000, Name: "me"},
			},
			Type:           meta.ItemType{Kind: meta.ItemRegularFile},
			Container:      meta.ContainerHealth{Kind: meta.Included},
			ContentFollows: true,
		}
		payload := []byte("123456789")

		var buf bytes.Buffer
		Expect(sink.Encode(&buf, rec, bytes.NewReader(payload))).To(Succeed())

		dec := sink.NewDecoder(&buf)
		got, body, err := dec.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Paths).To(Equal(rec.Paths))
		Expect(got.Len).To(Equal(rec.Len))
		Expect(got.MTime).To(Equal(rec.MTime))
		Expect(got.Ownership.User.ID).To(Equal(uint64(1000)))
		Expect(got.Ownership.User.Name).To(Equal("me"))
		Expect(got.Type.Kind).To(Equal(meta.ItemRegularFile))
		Expect(got.Container.Kind).To(Equal(meta.Included))
		Expect(got.ContentFollows).To(BeTrue())

		gotPayload, err := io.ReadAll(body)
		Expect(err).ToNot(HaveOccurred())
		Expect(gotPayload).To(Equal(payload))

		_, _, err = dec.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("TC-SK-003: a directory record carries no payload reader", func() {
		rec := sink.Record{
			Paths:     []string{"a"},
			Type:      meta.ItemType{Kind: meta.ItemDirectory},
			Container: meta.ContainerHealth{Kind: meta.Included},
		}

		var buf bytes.Buffer
		Expect(sink.Encode(&buf, rec, nil)).To(Succeed())

		dec := sink.NewDecoder(&buf)
		got, body, err := dec.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(got.ContentFollows).To(BeFalse())
		Expect(body).To(BeNil())
	})

	It("TC-SK-004: preserves an OpenError container message and a symlink target", func() {
		rec := sink.Record{
			Paths:     []string{"broken.zip"},
			Type:      meta.ItemType{Kind: meta.ItemSymbolicLink, LinkTarget: "../etc/passwd"},
			Container: meta.ContainerHealth{Kind: meta.OpenError, Message: "central directory not found"},
		}

		var buf bytes.Buffer
		Expect(sink.Encode(&buf, rec, nil)).To(Succeed())

		dec := sink.NewDecoder(&buf)
		got, _, err := dec.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(got.Container.Kind).To(Equal(meta.OpenError))
		Expect(got.Container.Message).To(Equal("central directory not found"))
		Expect(got.Type.LinkTarget).To(Equal("../etc/passwd"))
	})

	It("TC-SK-005: rejects a stream with the wrong magic", func() {
		var buf bytes.Buffer
		buf.Write([]byte{0, 0, 0, 0})
		dec := sink.NewDecoder(&buf)
		_, _, err := dec.Next()
		Expect(err).To(Equal(sink.ErrBadMagic))
	})

	It("TC-SK-006: concatenated records decode independently in order", func() {
		var buf bytes.Buffer
		for i := 0; i < 3; i++ {
			rec := sink.Record{
				Paths:     []string{string(rune('a' + i))},
				Type:      meta.ItemType{Kind: meta.ItemDirectory},
				Container: meta.ContainerHealth{Kind: meta.Included},
			}
			Expect(sink.Encode(&buf, rec, nil)).To(Succeed())
		}

		dec := sink.NewDecoder(&buf)
		var got []string
		for {
			rec, _, err := dec.Next()
			if err == io.EOF {
				break
			}
			Expect(err).ToNot(HaveOccurred())
			got = append(got, rec.Paths[0])
		}
		Expect(got).To(Equal([]string{"a", "b", "c"}))
	})
})
