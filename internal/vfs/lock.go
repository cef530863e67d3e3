//go:build !windows

// lock.go implements the per-database write lock on Unix systems.
//
// The lock file lives inside the database directory (conventionally named
// "flintlock", a name carried forward from the backend this format
// descends from) and is held for the lifetime of a writable database
// handle. flock(2) ties the lock to the open file description rather than
// the process, so it is released automatically when the holding fd is
// closed — including on process crash — without the fork+pipe helper
// process the original C++ implementation used to work around fcntl(2)'s
// "any close on the file drops every lock the process holds on it"
// surprise. Go never duplicates this fd elsewhere, so that hazard does not
// apply and no helper is needed.
package vfs

import (
	"errors"
	"io"
	"os"
	"syscall"
)

// fileLock implements file locking on Unix systems.
type fileLock struct {
	f *os.File
}

// lockFile acquires an exclusive, non-blocking flock on the named file,
// creating it if necessary. The returned Closer releases the lock when
// closed; closing it is also how a clean shutdown or "cancel" drops the
// lock deliberately.
func lockFile(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, classifyLockErr(name, err)
	}

	// Reassign the fd if it landed at or below stderr: a later accidental
	// write through os.Stdout/os.Stderr must never land in the lock file.
	if f.Fd() < 3 {
		dup, dupErr := syscall.Dup(int(f.Fd()))
		if dupErr == nil {
			_ = f.Close()
			f = os.NewFile(uintptr(dup), name)
		}
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, classifyLockErr(name, err)
	}

	return &fileLock{f: f}, nil
}

func classifyLockErr(path string, err error) *LockError {
	result := LockUnknown
	switch {
	case errors.Is(err, syscall.EWOULDBLOCK), errors.Is(err, syscall.EAGAIN):
		result = LockInUse
	case errors.Is(err, syscall.ENOLCK), errors.Is(err, syscall.ENOTSUP), errors.Is(err, syscall.EOPNOTSUPP):
		result = LockUnsupported
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		result = LockFDLimit
	}
	return &LockError{Result: result, Path: path, Err: err}
}

func (l *fileLock) Close() error {
	// Release the lock (ignore error - file will be closed anyway)
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	return l.f.Close()
}
