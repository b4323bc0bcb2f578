package gdocs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivefs/drivefs/internal/remote"
	dfserrors "github.com/drivefs/drivefs/pkg/errors"
)

const feedPage1 = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:gd="http://schemas.google.com/g/2005">
  <link rel="next" href="%s/feeds/default/private/full?page=2"/>
  <entry>
    <id>https://docs.example.com/feeds/id/document%%3A1</id>
    <published>2011-03-04T10:20:30.000Z</published>
    <updated>2011-03-05T10:20:30.000Z</updated>
    <gd:lastViewed>2011-03-06T10:20:30.000Z</gd:lastViewed>
    <category scheme="http://schemas.google.com/g/2005#kind" term="http://schemas.google.com/docs/2007#document" label="document"/>
    <title>report.txt</title>
    <content type="text/plain" src="%s/content/1"/>
    <gd:resourceId>document:1</gd:resourceId>
    <gd:quotaBytesUsed>10</gd:quotaBytesUsed>
  </entry>
  <entry>
    <id>https://docs.example.com/feeds/id/folder%%3A9</id>
    <category scheme="http://schemas.google.com/g/2005#kind" term="http://schemas.google.com/docs/2007#folder" label="folder"/>
    <title>Archive</title>
    <gd:resourceId>folder:9</gd:resourceId>
  </entry>
</feed>`

const feedPage2 = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:gd="http://schemas.google.com/g/2005">
  <entry>
    <id>https://docs.example.com/feeds/id/document%3A2</id>
    <title> notes </title>
    <content type="text/plain" src="https://docs.example.com/content/2"/>
  </entry>
</feed>`

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	c, err := New(cfg, srv.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestNewInvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "not a url"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, dfserrors.ErrCodeInvalidConfig, dfserrors.CodeOf(err))
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "gdocs", c.Name())
	assert.Equal(t, "https://docs.google.com/feeds/default/private/full?showfolders=false", c.ListURL(remote.Query{}))
}

func TestListURL(t *testing.T) {
	t.Parallel()

	c, err := New(Config{BaseURL: "https://docs.example.com/", Account: "alice@example.com"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"https://docs.example.com/feeds/alice@example.com/private/full?max-results=50&showfolders=false",
		c.ListURL(remote.Query{MaxResults: 50}))
}

func TestListDocuments(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	var auth, version []string
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		version = append(version, r.Header.Get("GData-Version"))
		w.Header().Set("Content-Type", "application/atom+xml")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, feedPage2)
			return
		}
		assert.Equal(t, "false", r.URL.Query().Get("showfolders"))
		fmt.Fprintf(w, feedPage1, srv.URL, srv.URL)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Credential: "secret-token"})
	entries, err := c.ListDocuments(context.Background(), remote.Query{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "report.txt", first.Name)
	assert.Equal(t, "document:1", first.ID)
	assert.Equal(t, "2011-03-04T10:20:30.000Z", first.Published)
	assert.Equal(t, "2011-03-05T10:20:30.000Z", first.Updated)
	assert.Equal(t, "2011-03-06T10:20:30.000Z", first.LastViewed)
	assert.Equal(t, srv.URL+"/content/1", first.ContentURI)
	assert.Contains(t, first.Raw, "quotaBytesUsed>10<")

	second := entries[1]
	assert.Equal(t, "notes", second.Name)
	assert.Equal(t, "https://docs.example.com/feeds/id/document%3A2", second.ID)

	assert.Equal(t, []string{"Bearer secret-token", "Bearer secret-token"}, auth)
	assert.Equal(t, []string{"3.0", "3.0"}, version)
}

func TestListDocumentsNextLinkLoop(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	calls := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `<feed xmlns="http://www.w3.org/2005/Atom"><link rel="next" href="%s/feeds/default/private/full?showfolders=false"/></feed>`, srv.URL)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	entries, err := c.ListDocuments(context.Background(), remote.Query{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, calls)
}

func TestListDocumentsErrors(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv, Config{}).ListDocuments(context.Background(), remote.Query{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, dfserrors.ErrRemoteFailure))

		var de *dfserrors.DriveFSError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, http.StatusUnauthorized, de.Status)
	})

	t.Run("malformed feed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<feed><entry>")
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv, Config{}).ListDocuments(context.Background(), remote.Query{})
		assert.True(t, errors.Is(err, dfserrors.ErrRemoteFailure))
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		c := newTestClient(t, srv, Config{})
		srv.Close()

		_, err := c.ListDocuments(context.Background(), remote.Query{})
		assert.True(t, errors.Is(err, dfserrors.ErrRemoteFailure))
	})
}

func TestFetchRange(t *testing.T) {
	t.Parallel()

	const body = "0123456789"

	tests := []struct {
		name       string
		status     int
		wantOK     bool
		wantStatus int
		wantData   string
	}{
		{"partial content", http.StatusPartialContent, true, http.StatusPartialContent, body},
		{"whole body", http.StatusOK, true, http.StatusPartialContent, body},
		{"forbidden", http.StatusForbidden, false, http.StatusForbidden, ""},
		{"range not satisfiable", http.StatusRequestedRangeNotSatisfiable, false, http.StatusRequestedRangeNotSatisfiable, ""},
		{"server error", http.StatusInternalServerError, false, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRange string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRange = r.Header.Get("Range")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv, Config{})
			res, err := c.FetchRange(context.Background(), srv.URL+"/content/1", remote.ByteRange{First: 0, Last: 9})
			require.NoError(t, err)
			assert.Equal(t, "bytes=0-9", gotRange)
			assert.Equal(t, tt.wantOK, res.OK())
			assert.Equal(t, tt.wantStatus, res.Status())

			data, err := res.Bytes()
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, tt.wantData, string(data))
			} else {
				assert.True(t, errors.Is(err, dfserrors.ErrRemoteFailure))
			}
		})
	}
}

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// rangeServer serves body honoring Range against the representation it
// sends: the gzip-coded bytes when the client accepts gzip.
func rangeServer(t *testing.T, body string, acceptEncoding *string) *httptest.Server {
	t.Helper()
	coded := gzipped(t, body)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*acceptEncoding = r.Header.Get("Accept-Encoding")
		rep := []byte(body)
		if strings.Contains(*acceptEncoding, "gzip") {
			rep = coded
			w.Header().Set("Content-Encoding", "gzip")
		}
		var first, last int
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &first, &last); !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if last >= len(rep) {
			last = len(rep) - 1
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(rep[first : last+1])
	}))
}

func TestFetchRangeNeverRequestsGzip(t *testing.T) {
	t.Parallel()

	const body = "0123456789"
	require.Greater(t, len(gzipped(t, body)), len(body))

	for _, accept := range []bool{false, true} {
		t.Run(fmt.Sprintf("accept_gzip=%v", accept), func(t *testing.T) {
			var acceptEncoding string
			srv := rangeServer(t, body, &acceptEncoding)
			defer srv.Close()

			c := newTestClient(t, srv, Config{AcceptGzip: accept})
			res, err := c.FetchRange(context.Background(), srv.URL+"/content/1", remote.ByteRange{First: 0, Last: 9})
			require.NoError(t, err)

			data, err := res.Bytes()
			require.NoError(t, err)
			assert.Equal(t, body, string(data))
			assert.NotContains(t, acceptEncoding, "gzip")
		})
	}
}

func TestListDocumentsGzip(t *testing.T) {
	t.Parallel()

	var acceptEncoding string
	var first, second []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acceptEncoding = r.Header.Get("Accept-Encoding")
		page := first
		if r.URL.Query().Get("page") == "2" {
			page = second
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(page)
	}))
	defer srv.Close()
	first = gzipped(t, fmt.Sprintf(feedPage1, srv.URL, srv.URL))
	second = gzipped(t, feedPage2)

	c := newTestClient(t, srv, Config{AcceptGzip: true})
	entries, err := c.ListDocuments(context.Background(), remote.Query{})
	require.NoError(t, err)
	assert.Equal(t, "gzip", acceptEncoding)
	require.Len(t, entries, 2)
	assert.Equal(t, "report.txt", entries[0].Name)
	assert.Equal(t, "notes", entries[1].Name)
	for _, e := range entries {
		assert.False(t, e.Folder, e.Name)
	}
}

func TestFeedEntryFolder(t *testing.T) {
	t.Parallel()

	folder := feedEntry{
		Title:      "Archive",
		ResourceID: "folder:9",
		Categories: []category{{Scheme: folderScheme, Term: "http://schemas.google.com/docs/2007#folder"}},
	}
	assert.True(t, folder.toEntry().Folder)

	doc := feedEntry{
		Title:      "report.txt",
		Categories: []category{{Scheme: folderScheme, Term: "http://schemas.google.com/docs/2007#document"}},
	}
	assert.False(t, doc.toEntry().Folder)
}

func TestFetchRangeTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv, Config{})
	srv.Close()

	_, err := c.FetchRange(context.Background(), srv.URL+"/content/1", remote.ByteRange{First: 0, Last: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, dfserrors.ErrRemoteFailure))
}

func TestFetchRangeInvalidURI(t *testing.T) {
	t.Parallel()

	c, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	_, err = c.FetchRange(context.Background(), "://bad", remote.ByteRange{First: 0, Last: 1})
	assert.Equal(t, dfserrors.ErrCodeInvalidArgument, dfserrors.CodeOf(err))
}
