package positionlist

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/glassdb/glassdb/internal/table"
)

const testBlockSize = 2048

type memStore struct {
	blocks map[uint32][]byte
}

func newMemStore() *memStore { return &memStore{blocks: make(map[uint32][]byte)} }

func (s *memStore) ReadBlock(n uint32) ([]byte, error) {
	b, ok := s.blocks[n]
	if !ok {
		return nil, fmt.Errorf("no such block %d", n)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (s *memStore) WriteBlock(n uint32, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks[n] = cp
	return nil
}

func (s *memStore) BlockSize() int { return testBlockSize }
func (s *memStore) Sync() error    { return nil }
func (s *memStore) Close() error   { return nil }

func newTestPositionlist() *Positionlist {
	t := table.CreateAndOpen("position", newMemStore(), 0, false)
	return Open(t)
}

func TestSetPositionsThenCommitRoundTrips(t *testing.T) {
	pl := newTestPositionlist()
	pl.SetPositions([]byte("cat"), 1, []uint64{3, 9, 12})
	pl.SetPositions([]byte("dog"), 1, []uint64{1})
	if err := pl.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, found, err := pl.GetPositions([]byte("cat"), 1)
	if err != nil || !found {
		t.Fatalf("GetPositions(cat,1) = %v, %v, %v", got, found, err)
	}
	if !reflect.DeepEqual(got, []uint64{3, 9, 12}) {
		t.Fatalf("GetPositions(cat,1) = %v, want [3 9 12]", got)
	}

	got2, found, err := pl.GetPositions([]byte("dog"), 1)
	if err != nil || !found || !reflect.DeepEqual(got2, []uint64{1}) {
		t.Fatalf("GetPositions(dog,1) = %v, %v, %v, want [1] true nil", got2, found, err)
	}

	_, found, err = pl.GetPositions([]byte("cat"), 2)
	if err != nil || found {
		t.Fatalf("GetPositions(cat,2) = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestRemovePositionsDeletesEntry(t *testing.T) {
	pl := newTestPositionlist()
	pl.SetPositions([]byte("cat"), 1, []uint64{3, 9, 12})
	if err := pl.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	pl.RemovePositions([]byte("cat"), 1)
	if err := pl.Commit(); err != nil {
		t.Fatalf("Commit remove: %v", err)
	}
	_, found, err := pl.GetPositions([]byte("cat"), 1)
	if err != nil || found {
		t.Fatalf("GetPositions after remove = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestIteratorFromTable(t *testing.T) {
	pl := newTestPositionlist()
	positions := []uint64{1, 2, 3, 50, 51}
	pl.SetPositions([]byte("cat"), 1, positions)
	if err := pl.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	it, ok, err := pl.Iterator([]byte("cat"), 1)
	if err != nil || !ok {
		t.Fatalf("Iterator(cat,1) = ok=%v, err=%v", ok, err)
	}
	var got []uint64
	for it.Next() {
		got = append(got, it.Position())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if !reflect.DeepEqual(got, positions) {
		t.Fatalf("iterator visited %v, want %v", got, positions)
	}
}
