/*
Package glassdb provides a pure-Go, Xapian-glass-compatible embedded
text-search storage engine.

glassdb implements the on-disk structures of Xapian's "glass" backend: a
copy-on-write B-tree (internal/table) holding a postlist table (per-term
postings, per-document lengths, per-value-slot statistics and value
streams), and optional position, termlist, document-data, spelling and
synonym tables layered on the same B-tree. A two-copy checksummed
version file ties every table's current root together into one
consistent revision, and a cross-platform write lock (internal/vfs)
enforces single-writer access to a database directory.

glassdb does not tokenize text, rank results, or parse queries — it is
the storage layer a search engine is built on, not the search engine
itself.

# Usage

Create creates a new database directory; Open reopens an existing one,
either writable or read-only. A writable Database stages document
changes — postings, document lengths, value-slot updates, termlist and
document-data entries — and applies them all in one atomic revision bump
at Commit.

# Concurrency

A single *Database handle is not safe for concurrent use by multiple
goroutines without external synchronization, matching Xapian's own
single-threaded-per-handle model: callers needing concurrent access
should open independent read-only handles, one per goroutine, sharing
the directory with at most one writable handle at a time.

# Compatibility

The on-disk layout (iamglass, flintlock, *.glass table files) follows
xapian-core/backends/glass's format; a database written by this package
is not read by an actual Xapian binary (block/version encodings are
re-derived here, not bit-for-bit copied), but the structural model —
block size, revision-stamped roots, free lists, chunked postlists — is
the same one glass uses.

Reference: xapian-core/backends/glass/glass_database.h
*/
package glassdb
