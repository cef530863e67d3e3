package encoding

import (
	"math/rand"
	"testing"
)

func TestInterpolativeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.Intn(50)
		lo := uint64(r.Intn(100))
		values := make([]uint64, n)
		v := lo
		for i := 0; i < n; i++ {
			v += uint64(r.Intn(5))
			if i > 0 {
				v++ // keep the sequence strictly increasing
			}
			values[i] = v
		}
		hi := values[n-1] + uint64(r.Intn(5))

		w := NewBitWriter()
		EncodeInterpolative(w, values, lo, hi)
		encoded := w.Bytes()

		out := make([]uint64, n)
		if err := DecodeInterpolative(NewBitReader(encoded), out, lo, hi); err != nil {
			t.Fatalf("trial %d: decode: %v", trial, err)
		}
		for i := range values {
			if out[i] != values[i] {
				t.Fatalf("trial %d: mismatch at %d: got %d want %d (values=%v lo=%d hi=%d)", trial, i, out[i], values[i], values, lo, hi)
			}
		}
	}
}

func TestInterpolativeSingleValue(t *testing.T) {
	values := []uint64{42}
	w := NewBitWriter()
	EncodeInterpolative(w, values, 42, 42)
	out := make([]uint64, 1)
	if err := DecodeInterpolative(NewBitReader(w.Bytes()), out, 42, 42); err != nil {
		t.Fatal(err)
	}
	if out[0] != 42 {
		t.Fatalf("got %d", out[0])
	}
}

func TestInterpolativeDenseRun(t *testing.T) {
	values := []uint64{10, 11, 12, 13, 14}
	w := NewBitWriter()
	EncodeInterpolative(w, values, 10, 14)
	if len(w.Bytes()) != 0 {
		t.Fatalf("dense run should encode to zero bits, got %d bytes", len(w.Bytes()))
	}
	out := make([]uint64, 5)
	if err := DecodeInterpolative(NewBitReader(nil), out, 10, 14); err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if v != uint64(10+i) {
			t.Fatalf("got %v", out)
		}
	}
}
