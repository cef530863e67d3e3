package glassdb

// database.go implements the C9 database facade: Create/Open bring up
// the write lock, version file, and whichever of the six component
// tables (postlist, position, docdata, termlist, spelling, synonym) are
// present; Commit applies staged edits in dependency order, flushes every
// table that was modified, and publishes them in a single new version
// record.
//
// Reference: xapian-core/backends/glass/glass_database.cc
// (GlassDatabase/GlassWritableDatabase).

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/glassdb/glassdb/internal/docdata"
	"github.com/glassdb/glassdb/internal/freelist"
	"github.com/glassdb/glassdb/internal/positionlist"
	"github.com/glassdb/glassdb/internal/postlist"
	"github.com/glassdb/glassdb/internal/spelling"
	"github.com/glassdb/glassdb/internal/synonym"
	"github.com/glassdb/glassdb/internal/table"
	"github.com/glassdb/glassdb/internal/termlist"
	"github.com/glassdb/glassdb/internal/version"
)

// Table indices into version.Record.Tables. postlist is always present;
// the rest are optional and lazily created per Options.
const (
	tablePostlist = iota
	tablePosition
	tableDocdata
	tableTermlist
	tableSpelling
	tableSynonym
	tableCount
)

// tableFileNames are the on-disk file names of §6.1, indexed the same
// way as version.Record.Tables.
var tableFileNames = [tableCount]string{
	tablePostlist: "postlist.glass",
	tablePosition: "position.glass",
	tableDocdata:  "docdata.glass",
	tableTermlist: "termlist.glass",
	tableSpelling: "spelling.glass",
	tableSynonym:  "synonym.glass",
}

const (
	versionFileName = "iamglass"
	lockFileName    = "flintlock"
)

// Database is one open glassdb database directory.
type Database struct {
	opts     Options
	dir      string
	writable bool

	lock io.Closer
	vf   *version.File

	stores [tableCount]*table.FileStore
	tabs   [tableCount]*table.Table
	infos  [tableCount]table.RootInfo

	postlistC *postlist.Postlist
	positionC *positionlist.Positionlist
	docdataC  *docdata.Docdata
	termlistC *termlist.Termlist
	spellingC *spelling.Spelling
	synonymC  *synonym.Synonym

	valueUpdaters map[uint32]*postlist.ValueUpdater

	revision               uint32
	docCount               uint64
	spellingWordfreqUBound uint64
	uuid                   [16]byte

	closed bool
}

func isPowerOfTwoInRange(n int) bool {
	if n < MinBlockSize || n > MaxBlockSize {
		return false
	}
	return n&(n-1) == 0
}

// Create creates a brand-new database directory at dir, with the
// postlist table always present and the rest of Options.With* selecting
// which optional tables to allocate. It fails with ErrAlreadyExists if
// dir already holds a database.
func Create(dir string, opts Options) (*Database, error) {
	opts = opts.normalize()
	if !isPowerOfTwoInRange(opts.BlockSize) {
		return nil, fmt.Errorf("glassdb: BlockSize %d is not a power of two in [%d, %d]", opts.BlockSize, MinBlockSize, MaxBlockSize)
	}

	versionPath := filepath.Join(dir, versionFileName)
	if opts.FS.Exists(versionPath) {
		return nil, ErrAlreadyExists
	}
	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	lock, err := opts.FS.Lock(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}

	db := &Database{
		opts:          opts,
		dir:           dir,
		writable:      true,
		lock:          lock,
		uuid:          version.NewUUID(),
		valueUpdaters: make(map[uint32]*postlist.ValueUpdater),
	}

	// tableDocdata follows WithTermlist, not a flag of its own: per
	// spec.md's resolution of DB_NO_TERMLIST, docdata and termlist are
	// present or absent together (see Options.WithTermlist).
	present := [tableCount]bool{
		tablePostlist: true,
		tablePosition: opts.WithPositions,
		tableDocdata:  opts.WithTermlist,
		tableTermlist: opts.WithTermlist,
		tableSpelling: opts.WithSpelling,
		tableSynonym:  opts.WithSynonym,
	}
	for i := 0; i < tableCount; i++ {
		if !present[i] {
			continue
		}
		store, err := table.CreateFileStore(filepath.Join(dir, tableFileNames[i]), opts.BlockSize)
		if err != nil {
			_ = lock.Close()
			return nil, err
		}
		db.stores[i] = store
		db.tabs[i] = table.CreateAndOpen(tableFileNames[i], store, opts.CompressMin, false)
	}
	db.wireComponents()

	vf, err := version.Open(opts.FS, dir, opts.Checksum)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}
	db.vf = vf

	// Materialize every table's initial empty root on disk and publish
	// the first version record: force=true flushes every present table
	// even though IsModified() is still false for all of them, since
	// none has ever been written at all yet.
	if err := db.commit(true); err != nil {
		_ = lock.Close()
		return nil, err
	}
	return db, nil
}

// Open opens an existing database directory. writable acquires the
// write lock and returns a handle whose component staging methods
// (Postlist().Inverter(), Positions().SetPositions(), ...) and Commit
// are usable; otherwise the handle is read-only, and Refresh must be
// called to observe a concurrent writer's later commits.
func Open(dir string, opts Options, writable bool) (*Database, error) {
	opts = opts.normalize()

	versionPath := filepath.Join(dir, versionFileName)
	if !opts.FS.Exists(versionPath) {
		return nil, ErrDoesNotExist
	}

	var lock io.Closer
	if writable {
		l, err := opts.FS.Lock(filepath.Join(dir, lockFileName))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLocked, err)
		}
		lock = l
	}

	vf, err := version.Open(opts.FS, dir, opts.Checksum)
	if err != nil {
		if lock != nil {
			_ = lock.Close()
		}
		return nil, err
	}

	db := &Database{
		opts:          opts,
		dir:           dir,
		writable:      writable,
		lock:          lock,
		vf:            vf,
		valueUpdaters: make(map[uint32]*postlist.ValueUpdater),
	}
	if err := db.openTablesFromRecord(vf.Current()); err != nil {
		if lock != nil {
			_ = lock.Close()
		}
		return nil, err
	}
	db.wireComponents()
	return db, nil
}

func (db *Database) present(i int) bool { return db.tabs[i] != nil }

func (db *Database) wireComponents() {
	if db.tabs[tablePostlist] != nil {
		db.postlistC = postlist.Open(db.tabs[tablePostlist])
	}
	if db.tabs[tablePosition] != nil {
		db.positionC = positionlist.Open(db.tabs[tablePosition])
	}
	if db.tabs[tableDocdata] != nil {
		db.docdataC = docdata.Open(db.tabs[tableDocdata])
	}
	if db.tabs[tableTermlist] != nil {
		db.termlistC = termlist.Open(db.tabs[tableTermlist])
	}
	if db.tabs[tableSpelling] != nil {
		db.spellingC = spelling.Open(db.tabs[tableSpelling])
	}
	if db.tabs[tableSynonym] != nil {
		db.synonymC = synonym.Open(db.tabs[tableSynonym])
	}
}

// openOneTable opens the store and table.Table for component i against
// tr, the version record's idea of its last-committed root.
func (db *Database) openOneTable(i int, tr version.TableRecord) (*table.FileStore, *table.Table, table.RootInfo, error) {
	path := filepath.Join(db.dir, tableFileNames[i])
	store, err := table.OpenFileStore(path, db.opts.BlockSize, !db.writable)
	if err != nil {
		return nil, nil, table.RootInfo{}, err
	}
	info := table.RootInfo{
		RootBlock:    tr.RootBlock,
		Level:        tr.Level,
		ItemCount:    tr.ItemCount,
		LastBlock:    tr.LastBlock,
		CompressMin:  db.opts.CompressMin,
		Sequential:   tr.Sequential(),
		FakeRoot:     tr.FakeRoot(),
		FreeListHead: freelist.Cursor{N: tr.FreeListN, C: int(tr.FreeListC)},
	}
	t, err := table.Open(tableFileNames[i], store, info, tr.Revision, db.writable)
	if err != nil {
		_ = store.Close()
		return nil, nil, table.RootInfo{}, err
	}
	return store, t, info, nil
}

// openTablesFromRecord opens every table present on disk against rec,
// the version record that names their roots.
func (db *Database) openTablesFromRecord(rec version.Record) error {
	db.revision = rec.Revision
	db.docCount = rec.DocCount
	db.spellingWordfreqUBound = rec.SpellingWordfreqUBound
	db.uuid = rec.UUID
	if rec.BlockSize != 0 {
		// The version record, not the caller's Options, is authoritative
		// for block size once a database exists.
		db.opts.BlockSize = int(rec.BlockSize)
	}

	for i := 0; i < tableCount; i++ {
		path := filepath.Join(db.dir, tableFileNames[i])
		if !db.opts.FS.Exists(path) {
			continue
		}
		if i >= len(rec.Tables) {
			return fmt.Errorf("glassdb: version record has no entry for %s", tableFileNames[i])
		}
		store, t, info, err := db.openOneTable(i, rec.Tables[i])
		if err != nil {
			return err
		}
		db.stores[i] = store
		db.tabs[i] = t
		db.infos[i] = info
	}
	return nil
}

// Refresh is the reopen-after-external-write detector of spec.md §4.9:
// it compares the on-disk version record's revision against the one
// this read-only handle last saw and, on a mismatch, reopens exactly the
// tables whose root actually moved. Any cursor obtained from a reopened
// table before this call is stale and must not be reused. Writable
// handles never need this — the write lock guarantees they are the
// database's sole writer, so no concurrent commit can move a root out
// from under them.
func (db *Database) Refresh() error {
	if db.writable {
		return nil
	}
	if db.closed {
		return ErrClosed
	}

	vf, err := version.Open(db.opts.FS, db.dir, db.opts.Checksum)
	if err != nil {
		return err
	}
	rec := vf.Current()
	if rec.Revision == db.revision {
		return nil
	}

	for i := 0; i < tableCount; i++ {
		path := filepath.Join(db.dir, tableFileNames[i])
		switch {
		case !db.opts.FS.Exists(path):
			if db.tabs[i] != nil {
				_ = db.tabs[i].Close()
				db.tabs[i], db.stores[i] = nil, nil
			}
		case i >= len(rec.Tables):
			return fmt.Errorf("glassdb: version record has no entry for %s", tableFileNames[i])
		default:
			tr := rec.Tables[i]
			if db.tabs[i] != nil && db.infos[i].RootBlock == tr.RootBlock && db.tabs[i].Revision() == tr.Revision {
				continue
			}
			store, t, info, err := db.openOneTable(i, tr)
			if err != nil {
				return err
			}
			if db.tabs[i] != nil {
				_ = db.tabs[i].Close()
			}
			db.stores[i], db.tabs[i], db.infos[i] = store, t, info
		}
	}

	db.vf = vf
	db.revision = rec.Revision
	db.docCount = rec.DocCount
	db.spellingWordfreqUBound = rec.SpellingWordfreqUBound
	db.uuid = rec.UUID
	db.wireComponents()
	return nil
}

func (db *Database) sortedValueUpdaterSlots() []uint32 {
	slots := make([]uint32, 0, len(db.valueUpdaters))
	for s := range db.valueUpdaters {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// commit is Commit's implementation; force skips the IsModified() check
// so Create can materialize every table's first root.
func (db *Database) commit(force bool) error {
	if !db.writable {
		return ErrReadOnly
	}
	if db.closed {
		return ErrClosed
	}

	// Dependency order per spec.md §4.9: doclens/postlists, then
	// positions, then value streams/value-stats, then docdata, then
	// termlist. Spelling and synonym apply their edits immediately (see
	// internal/spelling, internal/synonym) and need no staging step here.
	var docCountDelta int64
	if db.present(tablePostlist) {
		docCountDelta = db.postlistC.DocCountDelta()
		if err := db.postlistC.Commit(); err != nil {
			return fmt.Errorf("glassdb: committing postlist: %w", err)
		}
	}
	if db.present(tablePosition) {
		if err := db.positionC.Commit(); err != nil {
			return fmt.Errorf("glassdb: committing positions: %w", err)
		}
	}
	for _, slot := range db.sortedValueUpdaterSlots() {
		if err := db.valueUpdaters[slot].Commit(); err != nil {
			return fmt.Errorf("glassdb: committing value slot %d: %w", slot, err)
		}
	}
	if db.present(tableDocdata) {
		if err := db.docdataC.Commit(); err != nil {
			return fmt.Errorf("glassdb: committing docdata: %w", err)
		}
	}
	if db.present(tableTermlist) {
		if err := db.termlistC.Commit(); err != nil {
			return fmt.Errorf("glassdb: committing termlist: %w", err)
		}
	}
	db.docCount = uint64(int64(db.docCount) + docCountDelta)

	newRevision := db.revision + 1
	var flushed [tableCount]bool
	for i := 0; i < tableCount; i++ {
		t := db.tabs[i]
		if t == nil {
			continue
		}
		if !force && !t.IsModified() {
			continue
		}
		if err := t.FlushDB(newRevision); err != nil {
			return fmt.Errorf("glassdb: flushing %s: %w", tableFileNames[i], err)
		}
		flushed[i] = true
	}
	for i := 0; i < tableCount; i++ {
		if !flushed[i] {
			continue
		}
		if err := db.stores[i].Sync(); err != nil {
			return fmt.Errorf("glassdb: syncing %s: %w", tableFileNames[i], err)
		}
	}
	for i := 0; i < tableCount; i++ {
		if !flushed[i] {
			continue
		}
		info, err := db.tabs[i].Commit()
		if err != nil {
			return fmt.Errorf("glassdb: finalizing %s: %w", tableFileNames[i], err)
		}
		db.infos[i] = info
	}

	rec, err := db.buildRecord(newRevision)
	if err != nil {
		return err
	}
	if err := db.vf.Write(rec); err != nil {
		return fmt.Errorf("glassdb: writing version file: %w", err)
	}
	db.revision = newRevision
	return nil
}

func (db *Database) buildRecord(revision uint32) (version.Record, error) {
	rec := version.Record{
		Revision:               revision,
		BlockSize:              uint32(db.opts.BlockSize),
		Tables:                 make([]version.TableRecord, tableCount),
		DocCount:               db.docCount,
		SpellingWordfreqUBound: db.spellingWordfreqUBound,
		UUID:                   db.uuid,
	}
	if db.present(tablePostlist) {
		mi, err := db.postlistC.GetMetaInfo()
		if err != nil {
			return version.Record{}, err
		}
		rec.LastDocID = mi.LastDocID
		rec.DoclenLowerBound = mi.DoclenLowerBound
		rec.DoclenUpperBound = mi.DoclenUpperBound
		rec.WdfUpperBound = mi.WdfUpperBound
		rec.TotalDoclen = mi.TotalDocLen
	}
	for i := 0; i < tableCount; i++ {
		if db.tabs[i] == nil {
			continue
		}
		info := db.infos[i]
		rec.Tables[i] = version.NewTableRecordAt(
			info.RootBlock, info.Level, info.ItemCount, info.LastBlock,
			info.Sequential, info.FakeRoot,
			info.FreeListHead.N, uint32(info.FreeListHead.C),
			db.tabs[i].Revision(),
		)
	}
	return rec, nil
}

// Commit applies every staged change across the present component
// tables and publishes the result as a new version record (see commit
// for the exact order). Nothing is durable until Commit returns nil.
func (db *Database) Commit() error {
	return db.commit(false)
}

// Close releases every open table's file handle and the write lock (if
// held). It does not commit pending changes.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	var firstErr error
	for i := 0; i < tableCount; i++ {
		if db.tabs[i] == nil {
			continue
		}
		if err := db.tabs[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if db.lock != nil {
		if err := db.lock.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Postlist returns the postlist component, always present.
func (db *Database) Postlist() *postlist.Postlist { return db.postlistC }

// Positions returns the position-list component, or ErrFeatureUnavailable
// if this database was created without WithPositions.
func (db *Database) Positions() (*positionlist.Positionlist, error) {
	if db.positionC == nil {
		return nil, ErrFeatureUnavailable
	}
	return db.positionC, nil
}

// Docdata returns the document-data component, or ErrFeatureUnavailable
// if this database was created without WithTermlist (docdata follows
// termlist, see Options.WithTermlist).
func (db *Database) Docdata() (*docdata.Docdata, error) {
	if db.docdataC == nil {
		return nil, ErrFeatureUnavailable
	}
	return db.docdataC, nil
}

// Termlist returns the termlist component, or ErrFeatureUnavailable if
// this database was created without WithTermlist.
func (db *Database) Termlist() (*termlist.Termlist, error) {
	if db.termlistC == nil {
		return nil, ErrFeatureUnavailable
	}
	return db.termlistC, nil
}

// Spelling returns the spelling component, or ErrFeatureUnavailable if
// this database was created without WithSpelling.
func (db *Database) Spelling() (*spelling.Spelling, error) {
	if db.spellingC == nil {
		return nil, ErrFeatureUnavailable
	}
	return db.spellingC, nil
}

// Synonym returns the synonym component, or ErrFeatureUnavailable if
// this database was created without WithSynonym.
func (db *Database) Synonym() (*synonym.Synonym, error) {
	if db.synonymC == nil {
		return nil, ErrFeatureUnavailable
	}
	return db.synonymC, nil
}

// ForEachTable calls fn once per present component table, in table-index
// order (postlist first), passing its on-disk file name and the raw
// table.Table handle. It exists for read-only diagnostics (cmd/glassdump)
// that need to walk every key/tag pair regardless of which component
// owns the table; ordinary callers should use the typed accessors
// (Postlist, Termlist, ...) instead. fn must not mutate t.
func (db *Database) ForEachTable(fn func(name string, t *table.Table) error) error {
	for i := 0; i < tableCount; i++ {
		if db.tabs[i] == nil {
			continue
		}
		if err := fn(tableFileNames[i], db.tabs[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValueUpdater returns the cached value-stream updater for slot,
// creating one on first use. Database.Commit, not the caller, is
// responsible for calling its Commit method — it's invoked automatically
// in the value-streams step of commit's dependency order.
func (db *Database) ValueUpdater(slot uint32) (*postlist.ValueUpdater, error) {
	if !db.writable {
		return nil, ErrReadOnly
	}
	if u, ok := db.valueUpdaters[slot]; ok {
		return u, nil
	}
	u := db.postlistC.ValueUpdater(slot)
	db.valueUpdaters[slot] = u
	return u, nil
}

// AddSpellingWord records word as a spelling-correction candidate and
// keeps SpellingWordfreqUBound current. Spelling writes take effect
// immediately against the table (see internal/spelling), so there is no
// staged-edit step to run at Commit for this component.
func (db *Database) AddSpellingWord(word []byte) error {
	sp, err := db.Spelling()
	if err != nil {
		return err
	}
	if err := sp.AddWord(word); err != nil {
		return err
	}
	freq, _, err := sp.WordFreq(word)
	if err != nil {
		return err
	}
	if freq > db.spellingWordfreqUBound {
		db.spellingWordfreqUBound = freq
	}
	return nil
}

// DocCount returns the number of documents as of the last Commit (or,
// for a freshly opened read-only handle, the last Refresh).
func (db *Database) DocCount() uint64 { return db.docCount }

// LastDocID returns the highest docid ever committed.
func (db *Database) LastDocID() (uint64, error) {
	mi, err := db.postlistC.GetMetaInfo()
	if err != nil {
		return 0, err
	}
	return mi.LastDocID, nil
}

// TermFreq returns the number of documents term occurs in.
func (db *Database) TermFreq(term []byte) (uint64, error) {
	return db.postlistC.TermFreq(term)
}

// Doclen returns docid's document length.
func (db *Database) Doclen(docID uint64) (uint64, bool, error) {
	return db.postlistC.Doclen(docID)
}

// PostingIterator returns an iterator over term's postings in ascending
// docid order.
func (db *Database) PostingIterator(term []byte) *postlist.PostingIterator {
	return db.postlistC.PostingIterator(term)
}
