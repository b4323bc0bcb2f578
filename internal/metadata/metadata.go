// Package metadata turns remote document attributes into POSIX stat fields.
//
// The remote listing carries timestamps as strings and does not expose an
// authoritative byte size, so both are translated with local defaults: a
// missing or malformed timestamp becomes epoch 0, and the size comes from a
// quota figure embedded in the entry's serialized form (see ExtractSizeHint).
package metadata

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// BlockSize is the preferred I/O block size reported for every node.
const BlockSize = 4096

// POSIX file type bits.
const (
	TypeMask uint32 = 0o170000
	TypeDir  uint32 = 0o040000
	TypeFile uint32 = 0o100000
)

const (
	// FileMode is the permission and type bits of every file: read-only for all.
	FileMode = TypeFile | 0o444
	// DirMode is the permission and type bits of every directory.
	DirMode = TypeDir | 0o555
)

// remoteTimeLayout is the fixed prefix of remote timestamps once the
// fractional seconds and zone suffix are dropped.
const remoteTimeLayout = "2006-01-02T15:04:05"

// Block is the stat-equivalent metadata of a tree node.
type Block struct {
	Ctime int64
	Mtime int64
	Atime int64

	UID   uint32
	GID   uint32
	Mode  uint32
	Nlink uint32

	size    int64
	Blksize uint32
}

// Size returns the size in bytes. For files this is the size hint extracted
// from the remote entry and may be an approximation.
func (b Block) Size() int64 {
	return b.size
}

// IsDir reports whether the directory type bit is set.
func (b Block) IsDir() bool {
	return b.Mode&TypeMask == TypeDir
}

// Times holds the raw remote timestamp strings of an entry.
type Times struct {
	Published  string
	Updated    string
	LastViewed string

	// Modified, when set, is used for ctime and mtime instead of parsing
	// Published and Updated.
	Modified time.Time
}

// NewFileBlock builds the metadata of a regular file.
func NewFileBlock(t Times, size int64) Block {
	b := newBlock(FileMode)
	if t.Modified.IsZero() {
		b.Ctime = ParseRemoteTimestamp(t.Published)
		b.Mtime = ParseRemoteTimestamp(t.Updated)
	} else {
		b.Ctime = t.Modified.Unix()
		b.Mtime = t.Modified.Unix()
	}
	b.Atime = ParseRemoteTimestamp(t.LastViewed)
	if size > 0 {
		b.size = size
	}
	return b
}

// NewDirBlock builds the metadata of a directory. Directories have no remote
// timestamps and size 0.
func NewDirBlock() Block {
	return newBlock(DirMode)
}

func newBlock(mode uint32) Block {
	return Block{
		UID:     uint32(os.Geteuid()),
		GID:     uint32(os.Getegid()),
		Mode:    mode,
		Nlink:   1,
		Blksize: BlockSize,
	}
}

// ParseRemoteTimestamp converts a remote timestamp such as
// "2011-03-04T10:20:30.123Z" to Unix seconds, interpreting the wall clock in
// the local zone. Anything from the first "." on is discarded. Empty or
// malformed input yields 0.
func ParseRemoteTimestamp(text string) int64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	if i := strings.IndexByte(text, '.'); i >= 0 {
		text = text[:i]
	}
	// Timestamps without fractional seconds still carry a zone suffix.
	if len(text) > len(remoteTimeLayout) {
		text = text[:len(remoteTimeLayout)]
	}
	t, err := time.ParseInLocation(remoteTimeLayout, text, time.Local)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// quotaPattern matches the quota-usage figure in either the Atom XML form
// (<gd:quotaBytesUsed>123</gd:quotaBytesUsed>) or a JSON form
// ("quotaBytesUsed": "123" or "quotaBytesUsed": 123).
var quotaPattern = regexp.MustCompile(`quotaBytesUsed["']?\s*[:>]\s*["']?(\d+)`)

// ExtractSizeHint searches the serialized form of a remote entry for its
// quota-usage figure and returns it as a best-effort size. The remote service
// reports storage consumed rather than content length, so the result is an
// approximation. Returns 0 when no figure is present.
func ExtractSizeHint(raw string) int64 {
	m := quotaPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
