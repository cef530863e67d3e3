package encoding

import (
	"errors"
	"io"
	"os"
	"syscall"
)

// bufferedPageSize matches the teacher's buffered I/O page size.
// BufferedFile does not use it.
const bufferedPageSize = 4096

// BufferedFile wraps an *os.File with automatic retry on EINTR. It keeps
// no buffer of its own: every call goes straight to the file. Mirrors Xapian's io_read/io_write wrappers
// (xapian-core/common/io_utils.cc) which loop on read()/write() until the
// requested byte count is satisfied or a non-EINTR error occurs.
type BufferedFile struct {
	f        *os.File
	readOnly bool
}

// OpenBufferedFile opens name for read/write (or read-only) access.
func OpenBufferedFile(name string, readOnly bool) (*BufferedFile, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(name, flag, 0o666)
	if err != nil {
		return nil, err
	}
	return &BufferedFile{f: f, readOnly: readOnly}, nil
}

// CreateBufferedFile creates (truncating) name for read/write access.
func CreateBufferedFile(name string) (*BufferedFile, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, err
	}
	return &BufferedFile{f: f}, nil
}

// ReadAt reads exactly len(p) bytes at offset off, retrying on EINTR and
// on short reads, matching io_read's "loop until min satisfied" contract.
func (bf *BufferedFile) ReadAt(p []byte, off int64) error {
	for len(p) > 0 {
		n, err := bf.f.ReadAt(p, off)
		if n > 0 {
			p = p[n:]
			off += int64(n)
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, io.EOF) && len(p) == 0 {
				return nil
			}
			return err
		}
	}
	return nil
}

// WriteAt writes exactly len(p) bytes at offset off, retrying on EINTR and
// partial writes, matching io_write's contract.
func (bf *BufferedFile) WriteAt(p []byte, off int64) error {
	if bf.readOnly {
		return errors.New("encoding: write to read-only file")
	}
	for len(p) > 0 {
		n, err := bf.f.WriteAt(p, off)
		if n > 0 {
			p = p[n:]
			off += int64(n)
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
	}
	return nil
}

// Truncate resizes the underlying file.
func (bf *BufferedFile) Truncate(size int64) error {
	if bf.readOnly {
		return errors.New("encoding: truncate on read-only file")
	}
	return bf.f.Truncate(size)
}

// Sync flushes the file's in-kernel buffers to stable storage. Called
// before the version file rename at commit (spec §4.5, §5 ordering
// guarantees).
func (bf *BufferedFile) Sync() error {
	if bf.readOnly {
		return nil
	}
	return bf.f.Sync()
}

// Size returns the current file size.
func (bf *BufferedFile) Size() (int64, error) {
	fi, err := bf.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Reopen closes the write handle and reopens the same path read-only,
// used when a writable table is reopened as a read-only snapshot cursor
// source (e.g. during compaction of a live database).
func (bf *BufferedFile) Reopen() error {
	name := bf.f.Name()
	if err := bf.f.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(name, os.O_RDONLY, 0o666)
	if err != nil {
		return err
	}
	bf.f = f
	bf.readOnly = true
	return nil
}

// Close closes the underlying file descriptor.
func (bf *BufferedFile) Close() error {
	return bf.f.Close()
}

// Name returns the underlying file's path.
func (bf *BufferedFile) Name() string { return bf.f.Name() }
