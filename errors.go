package glassdb

// errors.go defines the facade-level error sentinels a caller checks
// with errors.Is. Internal packages (table, version, vfs, postlist, ...)
// raise their own more specific sentinels, which Commit/Open/Create
// return either unchanged or wrapped with a descriptive message (%w), not
// mapped onto one of these; only lock failures are wrapped in ErrLocked.
//
// Reference: xapian-core/backends/glass/glass_database.cc's
// DatabaseOpeningError/DatabaseCorruptError/DatabaseLockError/
// DocNotFoundError/InvalidArgumentError taxonomy (spec.md §7).

import "errors"

var (
	// ErrAlreadyExists means Create was called against a directory that
	// already holds a database (an iamglass file), without an overwrite
	// request.
	ErrAlreadyExists = errors.New("glassdb: database already exists")

	// ErrDoesNotExist means Open was called against a directory with no
	// iamglass version file.
	ErrDoesNotExist = errors.New("glassdb: database does not exist")

	// ErrReadOnly means a write operation (a component's staging methods,
	// Commit, ValueUpdater) was attempted on a handle opened read-only.
	ErrReadOnly = errors.New("glassdb: database is read-only")

	// ErrClosed means an operation was attempted after Close.
	ErrClosed = errors.New("glassdb: database is closed")

	// ErrDocNotFound means a docid has no entry in the doclen/docdata
	// table (deleted, or never existed).
	ErrDocNotFound = errors.New("glassdb: document not found")

	// ErrFeatureUnavailable means an operation needs a component table
	// (termlist, spelling, synonym) this database was opened without.
	ErrFeatureUnavailable = errors.New("glassdb: feature unavailable on this database")

	// ErrLocked means a writable Open/Create found another writer already
	// holding the database's write lock.
	ErrLocked = errors.New("glassdb: database is locked by another writer")
)
