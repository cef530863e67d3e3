// database_test.go exercises the Database facade end-to-end: Create,
// staged writes through the component accessors, Commit, and the
// read-side queries (Doclen, TermFreq, PostingIterator), plus the
// concurrency guarantees of spec.md §8 (S4: a concurrent reader during a
// run of commits, S6: write-lock exclusivity).
//
// Reference: xapian-core's GlassWritableDatabase/GlassDatabase
// integration tests and the teacher's db/db_concurrent_test.go pattern,
// adapted to this facade's single-writer-per-directory model.
package glassdb

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func testOptions() Options {
	return Options{WithTermlist: true}
}

// addDoc stages docID with terms (already tokenized, possibly repeated —
// wdf is the repeat count) the way a caller's indexing loop would.
func addDoc(db *Database, docID uint64, terms []string) {
	inv := db.Postlist().Inverter()
	inv.MarkNewDoc()
	inv.SetDocLength(docID, uint64(len(terms)))
	wdf := make(map[string]uint32, len(terms))
	for _, term := range terms {
		wdf[term]++
	}
	for term, freq := range wdf {
		inv.AddPosting([]byte(term), docID, freq)
	}
}

// delDoc stages the removal of docID, which previously carried terms.
func delDoc(db *Database, docID uint64, terms []string) {
	inv := db.Postlist().Inverter()
	inv.RemoveDocLength(docID)
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		inv.RemovePosting([]byte(term), docID)
	}
}

func postings(t *testing.T, db *Database, term string) []struct{ DocID, WDF uint64 } {
	t.Helper()
	it := db.PostingIterator([]byte(term))
	var got []struct{ DocID, WDF uint64 }
	for it.Next() {
		p := it.Posting()
		got = append(got, struct{ DocID, WDF uint64 }{p.DocID, uint64(p.WDF)})
	}
	if err := it.Error(); err != nil {
		t.Fatalf("PostingIterator(%s): %v", term, err)
	}
	return got
}

// TestScenarioS1SingleDocument covers spec.md §8 S1.
func TestScenarioS1SingleDocument(t *testing.T) {
	db, err := Create(t.TempDir(), testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	addDoc(db, 1, []string{"brown", "fox", "quick", "the"})
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := db.DocCount(); got != 1 {
		t.Fatalf("DocCount() = %d, want 1", got)
	}
	if l, ok, err := db.Doclen(1); err != nil || !ok || l != 4 {
		t.Fatalf("Doclen(1) = %d, %v, %v, want 4, true, nil", l, ok, err)
	}
	if tf, err := db.TermFreq([]byte("fox")); err != nil || tf != 1 {
		t.Fatalf("TermFreq(fox) = %d, %v, want 1, nil", tf, err)
	}
	if cf, err := db.Postlist().CollectionFreq([]byte("fox")); err != nil || cf != 1 {
		t.Fatalf("CollectionFreq(fox) = %d, %v, want 1, nil", cf, err)
	}
	want := []struct{ DocID, WDF uint64 }{{1, 1}}
	if got := postings(t, db, "fox"); len(got) != 1 || got[0] != want[0] {
		t.Fatalf("postings(fox) = %+v, want %+v", got, want)
	}
}

// TestScenarioS2SecondDocument covers spec.md §8 S2, continuing from S1.
func TestScenarioS2SecondDocument(t *testing.T) {
	db, err := Create(t.TempDir(), testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	addDoc(db, 1, []string{"brown", "fox", "quick", "the"})
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit doc 1: %v", err)
	}
	addDoc(db, 2, []string{"fox", "fox", "the"})
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit doc 2: %v", err)
	}

	if tf, err := db.TermFreq([]byte("fox")); err != nil || tf != 2 {
		t.Fatalf("TermFreq(fox) = %d, %v, want 2, nil", tf, err)
	}
	if cf, err := db.Postlist().CollectionFreq([]byte("fox")); err != nil || cf != 3 {
		t.Fatalf("CollectionFreq(fox) = %d, %v, want 3, nil", cf, err)
	}
	want := []struct{ DocID, WDF uint64 }{{1, 1}, {2, 2}}
	if got := postings(t, db, "fox"); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("postings(fox) = %+v, want %+v", got, want)
	}

	mi, err := db.Postlist().GetMetaInfo()
	if err != nil {
		t.Fatalf("GetMetaInfo: %v", err)
	}
	if mi.TotalDocLen != 7 {
		t.Fatalf("TotalDocLen = %d, want 7", mi.TotalDocLen)
	}
}

// TestScenarioS3DeleteDocument covers spec.md §8 S3, continuing from S2.
func TestScenarioS3DeleteDocument(t *testing.T) {
	db, err := Create(t.TempDir(), testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	doc1 := []string{"brown", "fox", "quick", "the"}
	addDoc(db, 1, doc1)
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit doc 1: %v", err)
	}
	addDoc(db, 2, []string{"fox", "fox", "the"})
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit doc 2: %v", err)
	}

	delDoc(db, 1, doc1)
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}

	if tf, err := db.TermFreq([]byte("brown")); err != nil || tf != 0 {
		t.Fatalf("TermFreq(brown) = %d, %v, want 0, nil", tf, err)
	}
	if tf, err := db.TermFreq([]byte("fox")); err != nil || tf != 1 {
		t.Fatalf("TermFreq(fox) = %d, %v, want 1, nil", tf, err)
	}
	want := []struct{ DocID, WDF uint64 }{{2, 2}}
	if got := postings(t, db, "fox"); len(got) != 1 || got[0] != want[0] {
		t.Fatalf("postings(fox) = %+v, want %+v", got, want)
	}
	if got := db.DocCount(); got != 1 {
		t.Fatalf("DocCount() = %d, want 1", got)
	}
}

// TestScenarioS4ConcurrentReaderDuringCommits covers spec.md §8 S4 at a
// scale suited to a unit test: a single writer commits a batch of new
// documents at a time while a concurrent reader repeatedly reopens and
// refreshes, asserting doccount never goes backwards and every term it
// has seen still reports a termfreq consistent with a real commit (never
// a torn read of a half-written postlist).
func TestScenarioS4ConcurrentReaderDuringCommits(t *testing.T) {
	const (
		totalDocs  = 400
		batchSize  = 40
		numBatches = totalDocs / batchSize
	)
	dir := t.TempDir()
	db, err := Create(dir, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer db.Close()

	reader, err := Open(dir, testOptions(), false)
	if err != nil {
		t.Fatalf("Open reader: %v", err)
	}
	defer reader.Close()

	stop := make(chan struct{})
	errs := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var lastDocCount uint64
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := reader.Refresh(); err != nil {
				errs <- fmt.Errorf("Refresh: %w", err)
				return
			}
			dc := reader.DocCount()
			if dc < lastDocCount {
				errs <- fmt.Errorf("DocCount went backwards: %d -> %d", lastDocCount, dc)
				return
			}
			lastDocCount = dc
			for id := uint64(1); id <= dc; id++ {
				term := fmt.Sprintf("term%d", id)
				tf, err := reader.TermFreq([]byte(term))
				if err != nil {
					errs <- fmt.Errorf("TermFreq(%s): %w", term, err)
					return
				}
				if tf != 1 {
					errs <- fmt.Errorf("TermFreq(%s) = %d, want 1 (doccount=%d)", term, tf, dc)
					return
				}
			}
		}
	}()

	docID := uint64(1)
	for b := 0; b < numBatches; b++ {
		for i := 0; i < batchSize; i++ {
			addDoc(db, docID, []string{fmt.Sprintf("term%d", docID)})
			docID++
		}
		if err := db.Commit(); err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("Commit batch %d: %v", b, err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}

	if got := db.DocCount(); got != totalDocs {
		t.Fatalf("final DocCount() = %d, want %d", got, totalDocs)
	}
}

// TestScenarioS6WriteLockExclusivity covers spec.md §8 S6: two attempts
// to open one directory writable must yield exactly one success, and the
// second succeeds once the first releases the lock — simulated
// in-process with two independent Open calls rather than two processes
// (see SPEC_FULL.md).
func TestScenarioS6WriteLockExclusivity(t *testing.T) {
	dir := t.TempDir()
	first, err := Create(dir, testOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	successes := make(chan *Database, attempts)
	failures := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := Open(dir, testOptions(), true)
			if err != nil {
				failures <- err
				return
			}
			successes <- db
		}()
	}
	wg.Wait()
	close(successes)
	close(failures)

	if len(successes) != 0 {
		t.Fatalf("got %d concurrent writable opens while the creator still holds the lock, want 0", len(successes))
	}
	for err := range failures {
		if !errors.Is(err, ErrLocked) {
			t.Fatalf("Open while locked: got %v, want ErrLocked", err)
		}
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(dir, testOptions(), true)
	if err != nil {
		t.Fatalf("Open after release: %v", err)
	}
	defer second.Close()
}
