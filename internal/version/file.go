package version

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/glassdb/glassdb/internal/checksum"
	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/vfs"
)

// renameRetries bounds the EXDEV retry loop on the rename that publishes
// a new version file — some network filesystems spuriously report EXDEV
// (cross-device link) for a same-directory rename under load.
const renameRetries = 8

// File manages a database's iamglass-equivalent version file: two
// self-verifying copies, written alternately so a crash mid-write of one
// copy never destroys the other.
type File struct {
	fs       vfs.FS
	dir      string
	path     string
	checksum checksum.Type

	current  Record
	nextSlot int // which of the two on-disk copies to overwrite next
}

// Open reads the version file at dir's conventional path, picking
// whichever of the two copies verifies and (if both do) carries the
// higher revision. If the file does not exist, Open returns a fresh,
// zero-revision File ready for Write to populate.
func Open(fs vfs.FS, dir string, csum checksum.Type) (*File, error) {
	path := filepath.Join(dir, "iamglass")
	f := &File{fs: fs, dir: dir, path: path, checksum: csum}

	if !fs.Exists(path) {
		return f, nil
	}

	raf, err := fs.OpenRandomAccess(path)
	if err != nil {
		return nil, err
	}
	defer raf.Close()

	size := raf.Size()
	buf := make([]byte, size)
	if _, err := io.ReadFull(sectionReader(raf, size), buf); err != nil {
		return nil, fmt.Errorf("version: reading %s: %w", path, err)
	}

	blob0, rest, ok0 := readSlot(buf)
	blob1, _, ok1 := readSlot(rest)

	var rec0, rec1 Record
	var err0, err1 error
	if ok0 {
		rec0, _, err0 = DecodeWithChecksum(blob0, csum)
	} else {
		err0 = ErrTruncated
	}
	if ok1 {
		rec1, _, err1 = DecodeWithChecksum(blob1, csum)
	} else {
		err1 = ErrTruncated
	}

	switch {
	case err0 == nil && err1 == nil:
		if rec1.Revision >= rec0.Revision {
			f.current = rec1
			f.nextSlot = 0
		} else {
			f.current = rec0
			f.nextSlot = 1
		}
	case err0 == nil:
		f.current = rec0
		f.nextSlot = 1
	case err1 == nil:
		f.current = rec1
		f.nextSlot = 0
	default:
		return nil, fmt.Errorf("version: %s: both copies invalid: %w / %w", path, err0, err1)
	}
	return f, nil
}

// readSlot reads one length-prefixed copy off the front of buf: a
// 4-byte big-endian length followed by that many bytes. The length
// prefix is what lets Open locate the second copy even when the first
// copy's own checksum fails to verify — corruption inside a copy's
// payload never hides where the next copy starts.
func readSlot(buf []byte) (blob, rest []byte, ok bool) {
	if len(buf) < 4 {
		return nil, buf, false
	}
	n := int(encoding.DecodeFixed32(buf[:4]))
	if n < 0 || 4+n > len(buf) {
		return nil, buf[4:], false
	}
	return buf[4 : 4+n], buf[4+n:], true
}

// writeSlot prepends blob's length to it.
func writeSlot(dst, blob []byte) []byte {
	var lenBuf [4]byte
	encoding.EncodeFixed32(lenBuf[:], uint32(len(blob)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, blob...)
}

// sectionReader adapts a RandomAccessFile to io.Reader starting at 0,
// enough for the one-shot full read Open needs.
func sectionReader(raf vfs.RandomAccessFile, size int64) io.Reader {
	return &raReader{raf: raf, size: size}
}

type raReader struct {
	raf vfs.RandomAccessFile
	off int64
	size int64
}

func (r *raReader) Read(p []byte) (int, error) {
	if r.off >= r.size {
		return 0, io.EOF
	}
	n, err := r.raf.ReadAt(p, r.off)
	r.off += int64(n)
	return n, err
}

// Current returns the most recently opened or written record.
func (f *File) Current() Record { return f.current }

// NewUUID generates a fresh database UUID for a newly created database.
func NewUUID() [16]byte {
	var u [16]byte
	_, _ = rand.Read(u[:])
	u[6] = (u[6] & 0x0f) | 0x40 // version 4
	u[8] = (u[8] & 0x3f) | 0x80 // RFC 4122 variant
	return u
}

// Write publishes rec as the database's current version record: flush
// and sync of every table must already have happened (the caller's
// responsibility, per spec.md's commit ordering), so Write only has to
// get the version file itself onto disk atomically.
//
// It writes both copies (the new one in the slot due for replacement,
// the old one re-copied into the other slot) to a temp file and renames
// that temp file over the version file — a single atomic swap, so a
// reader never observes a partially-written version file.
func (f *File) Write(rec Record) error {
	newBlob := EncodeWithChecksum(rec, f.checksum, nil)
	oldBlob := EncodeWithChecksum(f.current, f.checksum, nil)

	var buf []byte
	if f.nextSlot == 0 {
		buf = writeSlot(buf, newBlob)
		buf = writeSlot(buf, oldBlob)
	} else {
		buf = writeSlot(buf, oldBlob)
		buf = writeSlot(buf, newBlob)
	}

	tmp := f.path + ".tmp"
	wf, err := f.fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := wf.Write(buf); err != nil {
		_ = wf.Close()
		return err
	}
	if err := wf.Sync(); err != nil {
		_ = wf.Close()
		return err
	}
	if err := wf.Close(); err != nil {
		return err
	}

	if err := renameWithRetry(f.fs, tmp, f.path); err != nil {
		return err
	}
	if err := f.fs.SyncDir(f.dir); err != nil {
		return err
	}

	f.current = rec
	f.nextSlot = 1 - f.nextSlot
	return nil
}

// renameWithRetry retries a rename that spuriously fails with EXDEV, the
// failure mode some buggy network filesystems exhibit for a same-
// directory rename under concurrent load.
func renameWithRetry(fs vfs.FS, oldname, newname string) error {
	var err error
	for i := 0; i < renameRetries; i++ {
		err = fs.Rename(oldname, newname)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			return err
		}
		if runtime.GOOS == "windows" {
			break
		}
	}
	return fmt.Errorf("version: rename %s -> %s after %d retries: %w", oldname, newname, renameRetries, err)
}
