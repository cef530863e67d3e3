package table

import "errors"

// Sentinel errors a Table operation can return. The facade (package
// glassdb, root of this module) maps these onto the public error
// taxonomy (DatabaseCorruptError, InvalidArgumentError, ...).
var (
	ErrKeyTooLong       = errors.New("table: key exceeds 255 bytes")
	ErrCorrupt          = errors.New("table: corrupt table")
	ErrReadOnly         = errors.New("table: write attempted on a read-only table")
	ErrWrongRevision    = errors.New("table: root block does not carry the requested revision")
	ErrTableNotOpen     = errors.New("table: not open")
)
