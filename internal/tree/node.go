// Package tree holds the in-memory mirror of the remote document collection:
// directory and file nodes, path resolution, and the per-file content cache.
//
// A tree is built once per sync and never patched; a resync produces a new
// root and all previously resolved nodes become stale.
package tree

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/drivefs/drivefs/internal/metadata"
	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/pkg/errors"
)

// RootName is the name of the root directory.
const RootName = "/"

// Node is a directory or file in the tree.
type Node interface {
	Name() string
	Metadata() metadata.Block
	IsDir() bool
}

// DirectoryNode owns child directories and files.
type DirectoryNode struct {
	name  string
	meta  metadata.Block
	dirs  []*DirectoryNode
	files []*FileNode
}

// NewDirectory creates an empty directory node.
func NewDirectory(name string) *DirectoryNode {
	return &DirectoryNode{name: name, meta: metadata.NewDirBlock()}
}

func (d *DirectoryNode) Name() string             { return d.name }
func (d *DirectoryNode) Metadata() metadata.Block { return d.meta }
func (d *DirectoryNode) IsDir() bool              { return true }

// AddDir appends a child directory. Nothing populates nested directories
// yet; the remote listing is flat.
func (d *DirectoryNode) AddDir(child *DirectoryNode) {
	d.dirs = append(d.dirs, child)
}

// AddFile appends a child file. Names are not checked for uniqueness.
func (d *DirectoryNode) AddFile(child *FileNode) {
	d.files = append(d.files, child)
}

// Child looks up name among the child directories, then the child files.
// Matching is exact and case-sensitive; the first match wins.
func (d *DirectoryNode) Child(name string) (Node, error) {
	for _, c := range d.dirs {
		if c.name == name {
			return c, nil
		}
	}
	for _, c := range d.files {
		if c.name == name {
			return c, nil
		}
	}
	return nil, errors.NewError(errors.ErrCodeFileNotFound, "no such entry").
		WithComponent("tree").
		WithContext("dir", d.name).
		WithContext("name", name)
}

// Names returns the child names, directories first, in insertion order.
func (d *DirectoryNode) Names() []string {
	names := make([]string, 0, len(d.dirs)+len(d.files))
	for _, c := range d.dirs {
		names = append(names, c.name)
	}
	for _, c := range d.files {
		names = append(names, c.name)
	}
	return names
}

// Files returns the child files.
func (d *DirectoryNode) Files() []*FileNode {
	return d.files
}

// Len returns the number of children.
func (d *DirectoryNode) Len() int {
	return len(d.dirs) + len(d.files)
}

// FileNode is a remote document. Its content cache lives only between Open
// and Release.
type FileNode struct {
	name       string
	id         string
	contentURI string
	meta       metadata.Block

	open  bool
	cache []byte
}

// NewFileNode builds a file node from a listing entry.
func NewFileNode(e remote.Entry) *FileNode {
	times := metadata.Times{
		Published:  e.Published,
		Updated:    e.Updated,
		LastViewed: e.LastViewed,
		Modified:   e.Modified,
	}
	return &FileNode{
		name:       NormalizeName(e.Name),
		id:         e.ID,
		contentURI: e.ContentURI,
		meta:       metadata.NewFileBlock(times, metadata.ExtractSizeHint(e.Raw)),
	}
}

func (f *FileNode) Name() string             { return f.name }
func (f *FileNode) Metadata() metadata.Block { return f.meta }
func (f *FileNode) IsDir() bool              { return false }

// ID returns the remote object identifier.
func (f *FileNode) ID() string { return f.id }

// ContentURI returns the location the content is fetched from.
func (f *FileNode) ContentURI() string { return f.contentURI }

// NewRoot builds the root directory holding one file per entry. Folder
// entries are skipped.
func NewRoot(entries []remote.Entry) *DirectoryNode {
	root := NewDirectory(RootName)
	for _, e := range entries {
		if e.Folder {
			continue
		}
		root.AddFile(NewFileNode(e))
	}
	return root
}

// NormalizeName converts a remote display name into a usable tree key:
// valid UTF-8 in NFC form with no path separators or NUL bytes. The names
// "", "." and ".." are prefixed with "_".
func NormalizeName(name string) string {
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, string(utf8.RuneError))
	}
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == 0 {
			return '_'
		}
		return r
	}, name)
	switch name {
	case "", ".", "..":
		return "_" + name
	}
	return name
}
