package positionlist

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeSinglePosition(t *testing.T) {
	got, err := Decode(Encode([]uint64{7}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, []uint64{7}) {
		t.Fatalf("got %v, want [7]", got)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]uint64{
		{0, 1},
		{3, 9},
		{1, 2, 3, 4, 5},
		{5, 12, 19, 1000},
		{2, 3, 4, 5, 6, 7, 8},
		{0, 500000, 1000000},
	}
	for _, positions := range cases {
		tag := Encode(positions)
		got, err := Decode(tag)
		if err != nil {
			t.Fatalf("Decode(%v): %v", positions, err)
		}
		if !reflect.DeepEqual(got, positions) {
			t.Fatalf("round trip %v -> %v", positions, got)
		}
	}
}

func TestIteratorWalksInOrder(t *testing.T) {
	positions := []uint64{2, 5, 9, 40, 41, 42, 100}
	tag := Encode(positions)
	it, err := NewIterator(tag)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
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

func TestIteratorSkipTo(t *testing.T) {
	positions := []uint64{2, 5, 9, 40, 41, 42, 100}
	tag := Encode(positions)

	it, err := NewIterator(tag)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	if !it.SkipTo(10) || it.Position() != 40 {
		t.Fatalf("SkipTo(10) landed on %d, want 40", it.Position())
	}
	if !it.Next() || it.Position() != 41 {
		t.Fatalf("Next after SkipTo(10) landed on %d, want 41", it.Position())
	}

	it2, err := NewIterator(tag)
	if err != nil {
		t.Fatalf("NewIterator: %v", err)
	}
	if it2.SkipTo(1000) {
		t.Fatalf("SkipTo(1000) past last position should fail")
	}
	if it2.Next() {
		t.Fatalf("Next after exhausting SkipTo should stay exhausted")
	}
}
