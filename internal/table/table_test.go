package table

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/glassdb/glassdb/internal/block"
)

const testBlockSize = 2048

// memStore is a minimal in-memory Store, mirroring the free list's own
// test double, for exercising Table without touching a real file.
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

func newTestTable() *Table {
	return CreateAndOpen("test", newMemStore(), 0, false)
}

func TestAddGetRoundTrip(t *testing.T) {
	tb := newTestTable()
	entries := map[string]string{
		"alpha": "one",
		"beta":  "two",
		"gamma": "three",
	}
	for k, v := range entries {
		if err := tb.Add([]byte(k), []byte(v), false); err != nil {
			t.Fatalf("Add(%q): %v", k, err)
		}
	}
	for k, v := range entries {
		got, ok, err := tb.GetExactEntry([]byte(k))
		if err != nil {
			t.Fatalf("GetExactEntry(%q): %v", k, err)
		}
		if !ok {
			t.Fatalf("GetExactEntry(%q): not found", k)
		}
		if string(got) != v {
			t.Errorf("GetExactEntry(%q) = %q, want %q", k, got, v)
		}
	}
	if got := tb.GetEntryCount(); got != uint64(len(entries)) {
		t.Errorf("GetEntryCount() = %d, want %d", got, len(entries))
	}
}

func TestKeyExistsAndDel(t *testing.T) {
	tb := newTestTable()
	if err := tb.Add([]byte("k"), []byte("v"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := tb.KeyExists([]byte("k"))
	if err != nil || !ok {
		t.Fatalf("KeyExists(k) = %v, %v, want true, nil", ok, err)
	}
	removed, err := tb.Del([]byte("k"))
	if err != nil || !removed {
		t.Fatalf("Del(k) = %v, %v, want true, nil", removed, err)
	}
	ok, err = tb.KeyExists([]byte("k"))
	if err != nil || ok {
		t.Fatalf("KeyExists(k) after Del = %v, %v, want false, nil", ok, err)
	}
	if tb.GetEntryCount() != 0 {
		t.Errorf("GetEntryCount() after Del = %d, want 0", tb.GetEntryCount())
	}
	removed, err = tb.Del([]byte("k"))
	if err != nil || removed {
		t.Fatalf("second Del(k) = %v, %v, want false, nil", removed, err)
	}
}

func TestAddOverwriteKeepsCount(t *testing.T) {
	tb := newTestTable()
	if err := tb.Add([]byte("k"), []byte("v1"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tb.Add([]byte("k"), []byte("v2"), false); err != nil {
		t.Fatalf("Add overwrite: %v", err)
	}
	if tb.GetEntryCount() != 1 {
		t.Errorf("GetEntryCount() = %d, want 1", tb.GetEntryCount())
	}
	got, ok, err := tb.GetExactEntry([]byte("k"))
	if err != nil || !ok || string(got) != "v2" {
		t.Fatalf("GetExactEntry(k) = %q, %v, %v, want v2, true, nil", got, ok, err)
	}
}

// TestMultiComponentTag exercises a tag too large to fit in one leaf
// item, forcing buildItems to split it across components that must be
// reassembled transparently on read.
func TestMultiComponentTag(t *testing.T) {
	tb := newTestTable()
	big := bytes.Repeat([]byte("x"), 4*block.MaxItemSize(testBlockSize))
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	if err := tb.Add([]byte("bigkey"), big, false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, ok, err := tb.GetExactEntry([]byte("bigkey"))
	if err != nil || !ok {
		t.Fatalf("GetExactEntry(bigkey) = %v, %v, want found, nil", ok, err)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("GetExactEntry(bigkey) returned %d bytes, want %d bytes matching input", len(got), len(big))
	}
}

func TestForcedSplitAcrossManyKeys(t *testing.T) {
	tb := newTestTable()
	const n = 500
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		v := fmt.Sprintf("value-for-%04d", i)
		if err := tb.Add([]byte(k), []byte(v), false); err != nil {
			t.Fatalf("Add(%q): %v", k, err)
		}
	}
	if got := tb.GetEntryCount(); got != n {
		t.Fatalf("GetEntryCount() = %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		want := fmt.Sprintf("value-for-%04d", i)
		got, ok, err := tb.GetExactEntry([]byte(k))
		if err != nil || !ok || string(got) != want {
			t.Fatalf("GetExactEntry(%q) = %q, %v, %v, want %q, true, nil", k, got, ok, err, want)
		}
	}

	c := tb.NewCursor()
	count := 0
	var prev []byte
	for c.SeekToFirst(); c.Valid(); c.Next() {
		if prev != nil && bytes.Compare(prev, c.Key()) >= 0 {
			t.Fatalf("cursor not in ascending order: %q then %q", prev, c.Key())
		}
		prev = append([]byte(nil), c.Key()...)
		count++
	}
	if err := c.Error(); err != nil {
		t.Fatalf("cursor error: %v", err)
	}
	if count != n {
		t.Fatalf("cursor visited %d entries, want %d", count, n)
	}
}

// TestCOWSnapshotIsolation is property #4 from the spec: a reader that
// opened the table at revision R must keep seeing R's entries, bit for
// bit, even after a writer commits R+1.
func TestCOWSnapshotIsolation(t *testing.T) {
	store := newMemStore()
	w := CreateAndOpen("test", store, 0, false)
	if err := w.Add([]byte("k1"), []byte("v1"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.FlushDB(1); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	info1, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader, err := Open("test", store, info1, 1, false)
	if err != nil {
		t.Fatalf("Open reader at revision 1: %v", err)
	}

	if err := w.Add([]byte("k2"), []byte("v2"), false); err != nil {
		t.Fatalf("Add k2: %v", err)
	}
	if _, err := w.Del([]byte("k1")); err != nil {
		t.Fatalf("Del k1: %v", err)
	}
	if err := w.FlushDB(2); err != nil {
		t.Fatalf("FlushDB 2: %v", err)
	}
	if _, err := w.Commit(); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}

	// The reader, still bound to revision 1, must be unaffected.
	got, ok, err := reader.GetExactEntry([]byte("k1"))
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("reader.GetExactEntry(k1) = %q, %v, %v, want v1, true, nil", got, ok, err)
	}
	if ok, _ := reader.KeyExists([]byte("k2")); ok {
		t.Fatal("reader at revision 1 should not see k2, written at revision 2")
	}
}

func TestKeyTooLongRejected(t *testing.T) {
	tb := newTestTable()
	longKey := bytes.Repeat([]byte("k"), 256)
	if err := tb.Add(longKey, []byte("v"), false); err == nil {
		t.Fatal("Add() accepted a 256-byte key")
	}
}

func TestReadOnlyTableRejectsWrites(t *testing.T) {
	store := newMemStore()
	w := CreateAndOpen("test", store, 0, false)
	if err := w.Add([]byte("k"), []byte("v"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.FlushDB(1); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	info, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ro, err := Open("test", store, info, 1, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ro.Add([]byte("x"), []byte("y"), false); err == nil {
		t.Fatal("Add() on a read-only table should fail")
	}
	if _, err := ro.Del([]byte("k")); err == nil {
		t.Fatal("Del() on a read-only table should fail")
	}
}

func TestCancelDiscardsUncommittedChanges(t *testing.T) {
	store := newMemStore()
	w := CreateAndOpen("test", store, 0, false)
	if err := w.Add([]byte("k1"), []byte("v1"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.FlushDB(1); err != nil {
		t.Fatalf("FlushDB: %v", err)
	}
	info, err := w.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := w.Add([]byte("k2"), []byte("v2"), false); err != nil {
		t.Fatalf("Add k2: %v", err)
	}
	if !w.IsModified() {
		t.Fatal("IsModified() should be true after an uncommitted Add")
	}

	if err := w.Cancel(info, 1); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if w.IsModified() {
		t.Fatal("IsModified() should be false right after Cancel")
	}
	if ok, _ := w.KeyExists([]byte("k2")); ok {
		t.Fatal("Cancel should have discarded the uncommitted k2 entry")
	}
	if ok, _ := w.KeyExists([]byte("k1")); !ok {
		t.Fatal("Cancel should have kept the committed k1 entry")
	}
}
