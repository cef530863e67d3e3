package postlist

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

func newTestPostlist() *Postlist {
	t := table.CreateAndOpen("postlist", newMemStore(), 0, false)
	return Open(t)
}

func TestAddPostingThenCommitRoundTrips(t *testing.T) {
	p := newTestPostlist()
	p.Inverter().AddPosting([]byte("cat"), 1, 3)
	p.Inverter().AddPosting([]byte("cat"), 2, 1)
	p.Inverter().AddPosting([]byte("dog"), 1, 2)
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tf, err := p.TermFreq([]byte("cat"))
	if err != nil || tf != 2 {
		t.Fatalf("TermFreq(cat) = %d, %v, want 2, nil", tf, err)
	}
	cf, err := p.CollectionFreq([]byte("cat"))
	if err != nil || cf != 4 {
		t.Fatalf("CollectionFreq(cat) = %d, %v, want 4, nil", cf, err)
	}

	it := p.PostingIterator([]byte("cat"))
	var got []Posting
	for it.Next() {
		got = append(got, it.Posting())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if len(got) != 2 || got[0].DocID != 1 || got[0].WDF != 3 || got[1].DocID != 2 || got[1].WDF != 1 {
		t.Fatalf("PostingIterator(cat) = %+v, want [{1 3} {2 1}]", got)
	}
}

func TestRemovePostingDropsTermEntirely(t *testing.T) {
	p := newTestPostlist()
	p.Inverter().AddPosting([]byte("cat"), 1, 3)
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	p.Inverter().RemovePosting([]byte("cat"), 1)
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit remove: %v", err)
	}
	tf, err := p.TermFreq([]byte("cat"))
	if err != nil || tf != 0 {
		t.Fatalf("TermFreq(cat) after removing all postings = %d, %v, want 0, nil", tf, err)
	}
}

func TestDoclenRoundTripAndMetaInfo(t *testing.T) {
	p := newTestPostlist()
	p.Inverter().MarkNewDoc()
	p.Inverter().SetDocLength(1, 42)
	p.Inverter().MarkNewDoc()
	p.Inverter().SetDocLength(2, 7)
	if p.DocCountDelta() != 2 {
		t.Fatalf("DocCountDelta() = %d, want 2 (read before Commit, which resets it)", p.DocCountDelta())
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	l, ok, err := p.Doclen(1)
	if err != nil || !ok || l != 42 {
		t.Fatalf("Doclen(1) = %d, %v, %v, want 42, true, nil", l, ok, err)
	}
	l2, ok, err := p.Doclen(2)
	if err != nil || !ok || l2 != 7 {
		t.Fatalf("Doclen(2) = %d, %v, %v, want 7, true, nil", l2, ok, err)
	}

	m, err := p.GetMetaInfo()
	if err != nil {
		t.Fatalf("GetMetaInfo: %v", err)
	}
	if m.TotalDocLen != 49 || m.LastDocID != 2 || m.DoclenLowerBound != 7 || m.DoclenUpperBound != 42 {
		t.Fatalf("GetMetaInfo() = %+v, want TotalDocLen=49 LastDocID=2 bounds=[7,42]", m)
	}
}

func TestUserMetadataSetGetDelete(t *testing.T) {
	p := newTestPostlist()
	if err := p.SetUserMetadata([]byte("schema"), []byte("v1")); err != nil {
		t.Fatalf("SetUserMetadata: %v", err)
	}
	got, found, err := p.GetUserMetadata([]byte("schema"))
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("GetUserMetadata = %q, %v, %v, want v1, true, nil", got, found, err)
	}
	if err := p.SetUserMetadata([]byte("schema"), nil); err != nil {
		t.Fatalf("SetUserMetadata delete: %v", err)
	}
	_, found, err = p.GetUserMetadata([]byte("schema"))
	if err != nil || found {
		t.Fatalf("GetUserMetadata after delete = found=%v, err=%v, want false, nil", found, err)
	}
}

func TestManyTermsForceMultiChunk(t *testing.T) {
	p := newTestPostlist()
	const n = 400
	for i := 0; i < n; i++ {
		p.Inverter().AddPosting([]byte("common"), uint64(i+1), uint32(i%5+1))
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	tf, err := p.TermFreq([]byte("common"))
	if err != nil || tf != n {
		t.Fatalf("TermFreq(common) = %d, %v, want %d, nil", tf, err, n)
	}

	it := p.PostingIterator([]byte("common"))
	count := 0
	var prev uint64
	for it.Next() {
		post := it.Posting()
		if count > 0 && post.DocID <= prev {
			t.Fatalf("postings not strictly ascending: %d after %d", post.DocID, prev)
		}
		prev = post.DocID
		count++
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if count != n {
		t.Fatalf("iterator visited %d postings, want %d", count, n)
	}
}
