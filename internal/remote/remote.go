// Package remote defines the contract between the adapter and a remote
// document service: a flat listing query and a byte-range content fetch.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/drivefs/drivefs/pkg/errors"
)

// Entry is one document returned by a listing query.
type Entry struct {
	// Name is the display name as reported by the service.
	Name string
	// ID is the opaque remote identifier.
	ID string

	Published  string
	Updated    string
	LastViewed string

	// Raw is the serialized form of the entry, searched for the size hint.
	Raw string
	// ContentURI is where the document bytes are fetched from.
	ContentURI string

	// Modified is the exact last-modified instant when the backend reports
	// one. It takes precedence over Published and Updated.
	Modified time.Time

	// Folder marks a folder-category object. Folders never become nodes.
	Folder bool
}

// Query parameterizes a listing request. Listings always exclude folder
// objects.
type Query struct {
	// MaxResults caps the number of entries; 0 means the service default.
	MaxResults int
}

// ByteRange is an inclusive byte range, as in an HTTP Range header.
type ByteRange struct {
	First int64
	Last  int64
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() int64 {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.First, r.Last)
}

// FetchResult is the outcome of a range fetch. Services report a successful
// range request in different ways (200, 206, or 206 surfaced through an
// error path); backends resolve all of them into PartialContent so callers
// only ever see the two cases below.
type FetchResult struct {
	data   []byte
	status int
	ok     bool
}

// PartialContent is a successful fetch carrying data.
func PartialContent(data []byte) FetchResult {
	return FetchResult{data: data, status: http.StatusPartialContent, ok: true}
}

// HardFailure is a failed fetch with the remote status that caused it.
func HardFailure(status int) FetchResult {
	return FetchResult{status: status}
}

// OK reports whether the fetch produced content.
func (r FetchResult) OK() bool {
	return r.ok
}

// Status returns the HTTP status associated with the result.
func (r FetchResult) Status() int {
	return r.status
}

// Bytes returns the fetched content, or a REMOTE_FAILURE error for a hard
// failure.
func (r FetchResult) Bytes() ([]byte, error) {
	if !r.ok {
		return nil, errors.NewError(errors.ErrCodeRemoteFailure,
			fmt.Sprintf("content fetch failed with status %d", r.status)).
			WithStatus(r.status)
	}
	return r.data, nil
}

// Client is a remote document service.
type Client interface {
	// ListDocuments returns the flat document listing.
	ListDocuments(ctx context.Context, q Query) ([]Entry, error)
	// FetchRange requests rng of the document at uri. Transport failures
	// are returned as errors; HTTP-level failures as HardFailure.
	FetchRange(ctx context.Context, uri string, rng ByteRange) (FetchResult, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}
