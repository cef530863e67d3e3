package block

import "testing"

const testBlockSize = 2048

func TestLeafBuilderRoundTrip(t *testing.T) {
	lb := NewLeafBuilder(testBlockSize)

	items := []LeafItem{
		{Key: []byte("alpha"), Flags: FlagFirstComponent | FlagLastComponent, Value: []byte("v1")},
		{Key: []byte("beta"), Flags: FlagFirstComponent | FlagLastComponent, Value: []byte("v2")},
		{Key: []byte("gamma"), Component: 0, Flags: 0, Value: []byte("part0")},
	}
	for i, it := range items {
		if !lb.Add(it) {
			t.Fatalf("item %d did not fit", i)
		}
	}
	if lb.Len() != len(items) {
		t.Fatalf("Len() = %d, want %d", lb.Len(), len(items))
	}

	blk := lb.Finish(7)
	if blk.Revision() != 7 {
		t.Errorf("Revision() = %d, want 7", blk.Revision())
	}
	if blk.Level() != 0 {
		t.Errorf("Level() = %d, want 0", blk.Level())
	}
	if blk.NumEntries() != len(items) {
		t.Fatalf("NumEntries() = %d, want %d", blk.NumEntries(), len(items))
	}
	if blk.TotalFree() != blk.MaxFree() {
		t.Errorf("TotalFree()=%d != MaxFree()=%d, builder should keep these equal", blk.TotalFree(), blk.MaxFree())
	}

	for i, want := range items {
		got, err := blk.LeafItem(i)
		if err != nil {
			t.Fatalf("LeafItem(%d): %v", i, err)
		}
		if string(got.Key) != string(want.Key) {
			t.Errorf("item %d key = %q, want %q", i, got.Key, want.Key)
		}
		if string(got.Value) != string(want.Value) {
			t.Errorf("item %d value = %q, want %q", i, got.Value, want.Value)
		}
		if got.Flags != want.Flags {
			t.Errorf("item %d flags = %x, want %x", i, got.Flags, want.Flags)
		}
		if want.Flags&FlagFirstComponent == 0 && got.Component != want.Component {
			t.Errorf("item %d component = %d, want %d", i, got.Component, want.Component)
		}
	}
}

func TestLeafItemMinimumSize(t *testing.T) {
	it := LeafItem{Flags: FlagFirstComponent | FlagLastComponent}
	if got := it.encodedSize(); got != 3 {
		t.Fatalf("minimum leaf item size = %d, want 3", got)
	}
}

func TestLeafBuilderFitsRejectsOversizedItem(t *testing.T) {
	lb := NewLeafBuilder(testBlockSize)
	huge := LeafItem{
		Key:   []byte("k"),
		Flags: FlagFirstComponent | FlagLastComponent,
		Value: make([]byte, testBlockSize),
	}
	if lb.Fits(huge) {
		t.Fatal("Fits() reported true for an item larger than the whole block")
	}
	if lb.Add(huge) {
		t.Fatal("Add() accepted an oversized item")
	}
	if lb.Len() != 0 {
		t.Fatal("Add() should not have mutated the builder on rejection")
	}
}

func TestLeafBuilderFillsToCapacity(t *testing.T) {
	lb := NewLeafBuilder(testBlockSize)
	n := 0
	for {
		it := LeafItem{
			Key:   []byte{byte(n >> 8), byte(n)},
			Flags: FlagFirstComponent | FlagLastComponent,
			Value: []byte("fixed-size-value"),
		}
		if !lb.Add(it) {
			break
		}
		n++
	}
	if n == 0 {
		t.Fatal("expected at least one item to fit in a fresh block")
	}
	blk := lb.Finish(1)
	if blk.NumEntries() != n {
		t.Fatalf("NumEntries() = %d, want %d", blk.NumEntries(), n)
	}
	if int(blk.DirectoryEnd())+n*0 < HeaderSize {
		t.Fatal("directory end regressed below header")
	}
}

func TestBranchBuilderRoundTrip(t *testing.T) {
	bb := NewBranchBuilder(testBlockSize, 1)
	items := []BranchItem{
		{ChildBlock: 10, Key: []byte("alpha"), Component: 3},
		{ChildBlock: 11, Key: []byte("beta"), Component: 0},
		{ChildBlock: 12, Key: []byte{}, Component: 1}, // empty key is valid (e.g. rightmost branch item)
	}
	for i, it := range items {
		if !bb.Add(it) {
			t.Fatalf("branch item %d did not fit", i)
		}
	}

	blk := bb.Finish(42)
	if blk.Level() != 1 {
		t.Errorf("Level() = %d, want 1", blk.Level())
	}
	if blk.IsFreelist() {
		t.Error("IsFreelist() = true for a branch block")
	}
	if blk.NumEntries() != len(items) {
		t.Fatalf("NumEntries() = %d, want %d", blk.NumEntries(), len(items))
	}

	for i, want := range items {
		got, err := blk.BranchItem(i)
		if err != nil {
			t.Fatalf("BranchItem(%d): %v", i, err)
		}
		if got.ChildBlock != want.ChildBlock {
			t.Errorf("item %d child = %d, want %d", i, got.ChildBlock, want.ChildBlock)
		}
		if string(got.Key) != string(want.Key) {
			t.Errorf("item %d key = %q, want %q", i, got.Key, want.Key)
		}
		if got.Component != want.Component {
			t.Errorf("item %d component = %d, want %d", i, got.Component, want.Component)
		}
	}
}

func TestWrapRejectsShortBuffer(t *testing.T) {
	if _, err := Wrap(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("Wrap() accepted a buffer shorter than the header")
	}
}

func TestWrapRejectsBadDirectoryEnd(t *testing.T) {
	// directoryEnd defaults to 0 in a zeroed buffer, which is below
	// HeaderSize, so a freshly zeroed buffer must be rejected.
	buf := make([]byte, testBlockSize)
	if _, err := Wrap(buf); err == nil {
		t.Fatal("Wrap() accepted a zeroed buffer (directory-end 0, below the header)")
	}
	buf2 := make([]byte, testBlockSize)
	buf2[9], buf2[10] = 0, 5 // directoryEnd = 5, below HeaderSize (11)
	if _, err := Wrap(buf2); err == nil {
		t.Fatal("Wrap() accepted a directory-end below the header")
	}

	buf3 := make([]byte, testBlockSize)
	buf3[9] = byte((testBlockSize + 1) >> 8)
	buf3[10] = byte((testBlockSize + 1) & 0xff)
	if _, err := Wrap(buf3); err == nil {
		t.Fatal("Wrap() accepted a directory-end past the end of the block")
	}
}

func TestWrapRejectsOddDirectoryRegion(t *testing.T) {
	buf := make([]byte, testBlockSize)
	directoryEnd := testBlockSize - 3 // odd-sized directory region
	buf[9] = byte(directoryEnd >> 8)
	buf[10] = byte(directoryEnd)
	if _, err := Wrap(buf); err == nil {
		t.Fatal("Wrap() accepted a directory region not a whole number of 2-byte entries")
	}
}

func TestLeafItemOffsetOutOfRange(t *testing.T) {
	lb := NewLeafBuilder(testBlockSize)
	lb.Add(LeafItem{Key: []byte("a"), Flags: FlagFirstComponent | FlagLastComponent, Value: []byte("v")})
	blk := lb.Finish(1)

	if _, err := blk.LeafItem(1); err == nil {
		t.Fatal("LeafItem() accepted an out-of-range index")
	}
	if _, err := blk.LeafItem(-1); err == nil {
		t.Fatal("LeafItem() accepted a negative index")
	}
}

func TestMaxItemSize(t *testing.T) {
	got := MaxItemSize(2048)
	want := (2048 - HeaderSize - 4*2) / 4
	if got != want {
		t.Errorf("MaxItemSize(2048) = %d, want %d", got, want)
	}
	// A block of four max-size items plus their directory entries must
	// always fit, so the tree can always split a full leaf in two.
	if 4*got+4*2 > 2048-HeaderSize {
		t.Errorf("MaxItemSize(2048)=%d does not leave room for 4 max-size items", got)
	}

	if got := MaxItemSize(1 << 20); got != sizeFieldMask+3 {
		t.Errorf("MaxItemSize(huge) = %d, want format limit %d", got, sizeFieldMask+3)
	}
}

func TestCompareLeafKeys(t *testing.T) {
	a := LeafItem{Key: []byte("x"), Component: 0}
	b := LeafItem{Key: []byte("x"), Component: 1}
	c := LeafItem{Key: []byte("y"), Component: 0}

	if CompareLeafKeys(a, b) >= 0 {
		t.Error("same key, lower component should sort first")
	}
	if CompareLeafKeys(a, c) >= 0 {
		t.Error("lexicographically smaller key should sort first")
	}
	if CompareLeafKeys(a, a) != 0 {
		t.Error("identical items should compare equal")
	}
}
