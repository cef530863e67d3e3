package docdata

import (
	"fmt"
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

func newTestDocdata() *Docdata {
	t := table.CreateAndOpen("docdata", newMemStore(), 0, false)
	return Open(t)
}

func TestSetThenCommitRoundTrips(t *testing.T) {
	d := newTestDocdata()
	d.Set(1, []byte("hello world"))
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, found, err := d.Get(1)
	if err != nil || !found || string(got) != "hello world" {
		t.Fatalf("Get(1) = %q, %v, %v, want \"hello world\", true, nil", got, found, err)
	}

	_, found, err = d.Get(2)
	if err != nil || found {
		t.Fatalf("Get(2) = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestEmptyPayloadIsOmitted(t *testing.T) {
	d := newTestDocdata()
	d.Set(1, []byte("hello"))
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	d.Set(1, nil)
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit empty: %v", err)
	}
	_, found, err := d.Get(1)
	if err != nil || found {
		t.Fatalf("Get(1) after setting empty payload = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	d := newTestDocdata()
	d.Set(1, []byte("hello"))
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	d.Remove(1)
	if err := d.Commit(); err != nil {
		t.Fatalf("Commit remove: %v", err)
	}
	_, found, err := d.Get(1)
	if err != nil || found {
		t.Fatalf("Get(1) after remove = found=%v, err=%v, want false, nil", found, err)
	}
}
