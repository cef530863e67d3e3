package glassdb

// options.go implements database configuration options.

import (
	"github.com/glassdb/glassdb/internal/checksum"
	"github.com/glassdb/glassdb/internal/logging"
	"github.com/glassdb/glassdb/internal/vfs"
)

// Logger is an alias for the logging.Logger interface, so callers can
// plug in their own implementation without importing internal/logging.
type Logger = logging.Logger

// ChecksumType is an alias for the version-file/block checksum type.
type ChecksumType = checksum.Type

// Checksum type constants.
const (
	ChecksumTypeNone  = checksum.TypeNoChecksum
	ChecksumTypeCRC32 = checksum.TypeCRC32C
	ChecksumTypeXXH3  = checksum.TypeXXH3
)

const (
	// DefaultBlockSize is used when Options.BlockSize is left at zero.
	DefaultBlockSize = 8192
	// MinBlockSize and MaxBlockSize bound Options.BlockSize; spec.md §6.1
	// requires a power of two in this range.
	MinBlockSize = 2048
	MaxBlockSize = 65536
)

// Options configures a Database at Create or Open time. The zero value
// is valid: Create/Open fill in sensible defaults for every field left
// unset.
type Options struct {
	// BlockSize is the table block size. Create validates it (power of
	// two in [MinBlockSize, MaxBlockSize]; zero means DefaultBlockSize)
	// and persists it into the version record's BlockSize field; Open
	// uses the stored value to read the table files back, regardless of
	// what's passed here.
	BlockSize int

	// CompressMin is the minimum tag size a table's leaf builder will
	// attempt to compress, passed straight through to table.CreateAndOpen
	// for every component table. Zero disables compression.
	CompressMin uint32

	// Checksum selects the version-file checksum algorithm. Zero means
	// ChecksumTypeCRC32 — the checksum.Type zero value is
	// TypeNoChecksum, which is never a valid version-record setting, so
	// Options leaves it unset to mean "use the default" rather than
	// "disable checksumming".
	Checksum ChecksumType

	// Logger is kept in the Database's options; nil means logging.Discard.
	// Create and Open do not pass it on to any component table, so no
	// layer logs through it.
	Logger Logger

	// FS is the filesystem the write lock and version file are read
	// through. Table files always go through internal/table.FileStore's
	// raw OS I/O regardless of FS (see DESIGN.md). Nil means vfs.Default().
	FS vfs.FS

	// WithPositions, WithTermlist, WithSpelling, WithSynonym control which
	// optional component tables Create allocates. postlist is always
	// present. Open auto-detects which tables exist on disk and ignores
	// these fields.
	//
	// There is no independent WithDocdata: per spec.md's resolution of
	// DB_NO_TERMLIST, the docdata table and the termlist table are
	// created and dropped together, so docdata presence follows
	// WithTermlist rather than a flag of its own.
	WithPositions bool
	WithTermlist  bool
	WithSpelling  bool
	WithSynonym   bool
}

// normalize returns a copy of o with every zero-valued field replaced by
// its default.
func (o Options) normalize() Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Checksum == ChecksumTypeNone {
		o.Checksum = ChecksumTypeCRC32
	}
	if o.Logger == nil {
		o.Logger = logging.Discard
	}
	if o.FS == nil {
		o.FS = vfs.Default()
	}
	return o
}
