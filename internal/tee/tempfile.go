package tee

import (
	"io"
	"os"
)

// MemLimit is the in-memory caching threshold before TempFileTee spills to
// a temp file. Matches the 32 KiB buffer size the teacher uses for its own
// copy-buffer sizing.
const MemLimit = 32 * 1024

// TempFileTee wraps a non-seekable source and mirrors every byte read into
// an in-memory cache, spilling to a temp file once the cache exceeds
// MemLimit. Reset rewinds the replay cursor to 0; since every byte ever
// read is cached, Reset always succeeds.
type TempFileTee struct {
	src      io.Reader
	mem      []byte
	file     *os.File
	seekFile *os.File
	cached   int64 // total bytes ever cached (mem + file)
	readPos  int64 // replay cursor
	srcDone  bool
	srcErr   error
}

// NewTempFileTee wraps src. Spilling to a temp file only happens once the
// cache crosses MemLimit.
func NewTempFileTee(src io.Reader) *TempFileTee {
	return &TempFileTee{src: src, mem: make([]byte, 0, MemLimit)}
}

func (t *TempFileTee) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if t.readPos < t.cached {
		return t.readCache(p)
	}

	return t.readFresh(p)
}

func (t *TempFileTee) readCache(p []byte) (int, error) {
	memLen := int64(len(t.mem))

	if t.readPos < memLen {
		n := copy(p, t.mem[t.readPos:])
		t.readPos += int64(n)
		return n, nil
	}

	// Replay from the spill file.
	off := t.readPos - memLen
	if _, err := t.file.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	max := t.cached - t.readPos
	if int64(len(p)) > max {
		p = p[:max]
	}
	n, err := t.file.Read(p)
	t.readPos += int64(n)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (t *TempFileTee) readFresh(p []byte) (int, error) {
	if t.srcDone {
		return 0, t.eofOrErr()
	}

	n, err := t.src.Read(p)
	if n > 0 {
		if werr := t.mirror(p[:n]); werr != nil {
			return n, werr
		}
		t.cached += int64(n)
		t.readPos += int64(n)
	}

	if err != nil {
		t.srcDone = true
		if err != io.EOF {
			t.srcErr = err
		}
	}

	if n == 0 && err != nil {
		return 0, err
	}
	return n, nil
}

func (t *TempFileTee) eofOrErr() error {
	if t.srcErr != nil {
		return t.srcErr
	}
	return io.EOF
}

// mirror appends b to the cache, spilling the portion beyond MemLimit to a
// lazily created temp file.
func (t *TempFileTee) mirror(b []byte) error {
	room := MemLimit - len(t.mem)
	if room > 0 {
		n := room
		if n > len(b) {
			n = len(b)
		}
		t.mem = append(t.mem, b[:n]...)
		b = b[n:]
	}

	if len(b) == 0 {
		return nil
	}

	if t.file == nil {
		f, err := os.CreateTemp("", "unpack-tee-")
		if err != nil {
			return err
		}
		t.file = f
	}

	if _, err := t.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	_, err := t.file.Write(b)
	return err
}

func (t *TempFileTee) Reset() error {
	t.readPos = 0
	return nil
}

func (t *TempFileTee) LenAndReset() (int64, error) {
	buf := make([]byte, MemLimit)
	for !t.srcDone {
		if _, err := t.readFresh(buf); err != nil && err != io.EOF {
			return 0, err
		}
	}
	if t.srcErr != nil {
		return 0, t.srcErr
	}
	total := t.cached
	return total, t.Reset()
}

// AsSeekable forces a full drain, then materializes the complete content
// (in-memory prefix plus any spilled tail) into its own temp file, since
// t.file alone only ever holds the overflow past MemLimit.
func (t *TempFileTee) AsSeekable() (Seekable, error) {
	if _, err := t.LenAndReset(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "unpack-tee-seek-")
	if err != nil {
		return nil, err
	}

	if _, err := f.Write(t.mem); err != nil {
		return nil, err
	}
	if t.file != nil {
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if _, err := io.Copy(f, t.file); err != nil {
			return nil, err
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	t.seekFile = f
	return f, nil
}

func (t *TempFileTee) Close() error {
	var err error
	if t.file != nil {
		name := t.file.Name()
		err = t.file.Close()
		_ = os.Remove(name)
	}
	if t.seekFile != nil {
		name := t.seekFile.Name()
		if e := t.seekFile.Close(); e != nil && err == nil {
			err = e
		}
		_ = os.Remove(name)
	}
	return err
}
