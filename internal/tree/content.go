package tree

import (
	"context"

	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/errors"
)

// Fetcher retrieves a byte range of remote content.
type Fetcher interface {
	FetchRange(ctx context.Context, uri string, rng remote.ByteRange) (remote.FetchResult, error)
}

// Open marks the file open. It never fetches and is a no-op on an open file.
func (f *FileNode) Open() {
	f.open = true
}

// Release marks the file closed and drops its cached content. Opens are not
// counted: one release closes the file for every opener.
func (f *FileNode) Release() {
	f.open = false
	f.cache = nil
}

// IsOpen reports whether the file is open.
func (f *FileNode) IsOpen() bool {
	return f.open
}

// Cached reports whether content has been fetched since the last open.
func (f *FileNode) Cached() bool {
	return f.cache != nil
}

// CacheSize returns the number of cached content bytes.
func (f *FileNode) CacheSize() int {
	return len(f.cache)
}

// Read returns up to size bytes starting at offset, clamped to the declared
// size and to the content actually fetched. The first read after Open
// fetches the whole object with a single range request; later reads are
// served from the cache. fetched reports whether this call went to the
// remote service.
func (f *FileNode) Read(ctx context.Context, src Fetcher, size int, offset int64) (data []byte, fetched bool, err error) {
	if !f.open {
		return nil, false, errors.NewError(errors.ErrCodeFileNotOpen, "file is not open").
			WithComponent("tree").
			WithOperation("read").
			WithContext("name", f.name)
	}
	if offset < 0 || size < 0 {
		return nil, false, errors.NewError(errors.ErrCodeInvalidArgument, "negative offset or size").
			WithComponent("tree").
			WithOperation("read").
			WithContext("name", f.name)
	}

	declared := f.meta.Size()
	if offset >= declared || size == 0 {
		return []byte{}, false, nil
	}

	if f.cache == nil {
		res, err := src.FetchRange(ctx, f.contentURI, remote.ByteRange{First: 0, Last: declared - 1})
		if err != nil {
			return nil, false, err
		}
		body, err := res.Bytes()
		if err != nil {
			return nil, false, err
		}
		if body == nil {
			body = []byte{}
		}
		f.cache = body
		fetched = true
	}

	end := offset + int64(size)
	if end > declared {
		end = declared
	}
	if n := int64(len(f.cache)); end > n {
		end = n
	}
	if offset >= end {
		return []byte{}, fetched, nil
	}
	return f.cache[offset:end], fetched, nil
}
