package termlist

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

func testEntries() []Entry {
	return []Entry{
		{Term: []byte("ant"), WDF: 1},
		{Term: []byte("antelope"), WDF: 2},
		{Term: []byte("ants"), WDF: 1},
		{Term: []byte("bee"), WDF: 5},
	}
}

func TestEncodeDecodeEntriesRoundTrip(t *testing.T) {
	entries := testEntries()
	tag := EncodeEntries(9, entries)
	doclen, got, err := DecodeEntries(tag)
	if err != nil {
		t.Fatalf("DecodeEntries: %v", err)
	}
	if doclen != 9 {
		t.Fatalf("doclen = %d, want 9", doclen)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("got %+v, want %+v", got, entries)
	}
}

func TestEncodeDecodeEmptyTermlist(t *testing.T) {
	tag := EncodeEntries(0, nil)
	doclen, got, err := DecodeEntries(tag)
	if err != nil || doclen != 0 || len(got) != 0 {
		t.Fatalf("empty termlist round trip = %d, %+v, %v", doclen, got, err)
	}
}

func newTestTermlist() *Termlist {
	t := table.CreateAndOpen("termlist", newMemStore(), 0, false)
	return Open(t)
}

func TestSetThenCommitRoundTrips(t *testing.T) {
	tl := newTestTermlist()
	entries := testEntries()
	tl.Set(1, 9, entries)
	if err := tl.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	doclen, got, found, err := tl.Get(1)
	if err != nil || !found {
		t.Fatalf("Get(1) = found=%v, err=%v", found, err)
	}
	if doclen != 9 || !reflect.DeepEqual(got, entries) {
		t.Fatalf("Get(1) = %d, %+v, want 9, %+v", doclen, got, entries)
	}

	_, _, found, err = tl.Get(2)
	if err != nil || found {
		t.Fatalf("Get(2) = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	tl := newTestTermlist()
	tl.Set(1, 9, testEntries())
	if err := tl.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tl.Remove(1)
	if err := tl.Commit(); err != nil {
		t.Fatalf("Commit remove: %v", err)
	}
	_, _, found, err := tl.Get(1)
	if err != nil || found {
		t.Fatalf("Get(1) after remove = found=%v, err=%v, want false, nil", found, err)
	}
}
