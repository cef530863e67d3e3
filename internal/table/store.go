package table

import (
	"sync/atomic"

	"github.com/glassdb/glassdb/internal/cache"
	"github.com/glassdb/glassdb/internal/encoding"
)

// Store is the block-addressed I/O surface a Table needs. internal/freelist
// depends on the identical shape (ReadBlock/WriteBlock/BlockSize), so any
// Store also satisfies freelist.Store without an adapter.
type Store interface {
	ReadBlock(n uint32) ([]byte, error)
	WriteBlock(n uint32, data []byte) error
	BlockSize() int
	Sync() error
	Close() error
}

// defaultCacheBlocks is the default capacity, in whole blocks, of each
// FileStore's decoded-block cache.
const defaultCacheBlocks = 256

var nextTableID atomic.Uint64

// FileStore is the on-disk Store backing a *.glass table file: a flat
// array of fixed-size blocks addressed by block number, built on the
// teacher's buffered-I/O wrapper (encoding.BufferedFile), which already
// retries on EINTR the way Xapian's io_read/io_write helpers do. Reads
// go through an internal/cache LRU keyed by (tableID, block number) —
// blocks never change once written under copy-on-write, so a hit never
// needs to be invalidated, only ever overwritten by a later write to
// the same (recycled) block number.
type FileStore struct {
	f         *encoding.BufferedFile
	blockSize int
	tableID   uint64
	blocks    cache.Cache
}

func newFileStore(f *encoding.BufferedFile, blockSize int) *FileStore {
	return &FileStore{
		f:         f,
		blockSize: blockSize,
		tableID:   nextTableID.Add(1),
		blocks:    cache.NewLRUCache(uint64(defaultCacheBlocks * blockSize)),
	}
}

// CreateFileStore creates (truncating) a fresh table file.
func CreateFileStore(path string, blockSize int) (*FileStore, error) {
	f, err := encoding.CreateBufferedFile(path)
	if err != nil {
		return nil, err
	}
	return newFileStore(f, blockSize), nil
}

// OpenFileStore opens an existing table file.
func OpenFileStore(path string, blockSize int, readOnly bool) (*FileStore, error) {
	f, err := encoding.OpenBufferedFile(path, readOnly)
	if err != nil {
		return nil, err
	}
	return newFileStore(f, blockSize), nil
}

func (s *FileStore) cacheKey(n uint32) cache.CacheKey {
	return cache.CacheKey{TableID: s.tableID, BlockNumber: uint64(n)}
}

func (s *FileStore) ReadBlock(n uint32) ([]byte, error) {
	key := s.cacheKey(n)
	if h := s.blocks.Lookup(key); h != nil {
		buf := h.Value()
		s.blocks.Release(h)
		return buf, nil
	}

	buf := make([]byte, s.blockSize)
	if err := s.f.ReadAt(buf, int64(n)*int64(s.blockSize)); err != nil {
		return nil, err
	}
	h := s.blocks.Insert(key, buf, uint64(len(buf)))
	s.blocks.Release(h)
	return buf, nil
}

func (s *FileStore) WriteBlock(n uint32, data []byte) error {
	if err := s.f.WriteAt(data, int64(n)*int64(s.blockSize)); err != nil {
		return err
	}
	// data's backing array belongs to the caller's block builder, which
	// recycles it right after this call returns (see block.LeafBuilder),
	// so the cache needs its own copy.
	cached := append([]byte(nil), data...)
	h := s.blocks.Insert(s.cacheKey(n), cached, uint64(len(cached)))
	s.blocks.Release(h)
	return nil
}

func (s *FileStore) BlockSize() int { return s.blockSize }
func (s *FileStore) Sync() error    { return s.f.Sync() }
func (s *FileStore) Close() error   { return s.f.Close() }

// Name returns the underlying file path, for diagnostics.
func (s *FileStore) Name() string { return s.f.Name() }
