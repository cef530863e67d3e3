package version

import (
	"bytes"
	"testing"

	"github.com/glassdb/glassdb/internal/checksum"
)

func testRecord() Record {
	return Record{
		Revision:  7,
		BlockSize: 8192,
		Tables: []TableRecord{
			NewTableRecordAt(3, 0, 12, 4, true, false, 0, 0, 7),
			NewTableRecordAt(9, 1, 0, 10, false, true, 5, 2, 5),
		},
		DocCount:               100,
		LastDocID:               105,
		DoclenLowerBound:        1,
		DoclenUpperBound:        500,
		WdfUpperBound:           900,
		TotalDoclen:             40000,
		SpellingWordfreqUBound:  17,
		UUID:                    NewUUID(),
	}
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	r := testRecord()
	buf := r.Encode(nil)

	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Decode consumed %d bytes, want %d", n, len(buf))
	}
	if got.Revision != r.Revision || got.BlockSize != r.BlockSize || len(got.Tables) != len(r.Tables) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
	for i := range r.Tables {
		if got.Tables[i] != r.Tables[i] {
			t.Errorf("table %d: got %+v, want %+v", i, got.Tables[i], r.Tables[i])
		}
	}
	if got.DocCount != r.DocCount || got.TotalDoclen != r.TotalDoclen {
		t.Errorf("stats mismatch: got %+v, want %+v", got, r)
	}
	if got.UUID != r.UUID {
		t.Errorf("UUID mismatch: got %x, want %x", got.UUID, r.UUID)
	}
}

func TestTableRecordFlags(t *testing.T) {
	tr := NewTableRecord(1, 0, 0, 1, true, true, 0, 0)
	if !tr.Sequential() || !tr.FakeRoot() {
		t.Fatalf("expected both flags set, got Flags=%#x", tr.Flags)
	}
	tr2 := NewTableRecord(1, 0, 0, 1, false, false, 0, 0)
	if tr2.Sequential() || tr2.FakeRoot() {
		t.Fatalf("expected no flags set, got Flags=%#x", tr2.Flags)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.Repeat([]byte{0xAA}, 32)
	if _, _, err := Decode(buf); err != ErrBadMagic {
		t.Fatalf("Decode with garbage header = %v, want ErrBadMagic", err)
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	r := testRecord()
	full := r.Encode(nil)
	if _, _, err := Decode(full[:len(full)-1]); err == nil {
		t.Fatal("Decode of truncated buffer should fail")
	}
}

func TestEncodeDecodeWithChecksumRoundTrip(t *testing.T) {
	r := testRecord()
	for _, typ := range []checksum.Type{checksum.TypeCRC32C, checksum.TypeXXH3} {
		blob := EncodeWithChecksum(r, typ, nil)
		got, n, err := DecodeWithChecksum(blob, typ)
		if err != nil {
			t.Fatalf("%v: DecodeWithChecksum: %v", typ, err)
		}
		if n != len(blob) {
			t.Fatalf("%v: consumed %d bytes, want %d", typ, n, len(blob))
		}
		if got.Revision != r.Revision {
			t.Fatalf("%v: Revision = %d, want %d", typ, got.Revision, r.Revision)
		}
	}
}

func TestDecodeWithChecksumDetectsCorruption(t *testing.T) {
	r := testRecord()
	blob := EncodeWithChecksum(r, checksum.TypeCRC32C, nil)
	blob[len(blob)/2] ^= 0xFF
	if _, _, err := DecodeWithChecksum(blob, checksum.TypeCRC32C); err != ErrChecksumMismatch {
		t.Fatalf("DecodeWithChecksum of corrupted blob = %v, want ErrChecksumMismatch", err)
	}
}

func TestNewUUIDLooksLikeV4(t *testing.T) {
	u := NewUUID()
	if u[6]&0xf0 != 0x40 {
		t.Errorf("UUID version nibble = %#x, want 0x4_", u[6])
	}
	if u[8]&0xc0 != 0x80 {
		t.Errorf("UUID variant bits = %#x, want 10xxxxxx", u[8])
	}
}
