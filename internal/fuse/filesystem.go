//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"
	"sync/atomic"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/metadata"
	"github.com/drivefs/drivefs/pkg/errors"
)

// FileSystem serves a read-only go-fuse node tree backed by Operations.
// Nodes carry only their path; every call resolves against the current
// state of Operations.
type FileSystem struct {
	ops    Operations
	logger *zap.Logger
	stats  Stats
}

// NewFileSystem creates a new FUSE filesystem instance
func NewFileSystem(ops Operations, logger *zap.Logger) *FileSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystem{
		ops:    ops,
		logger: logger.With(zap.String("component", "fuse")),
	}
}

// Root returns the root inode
func (fsys *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fsys: fsys, path: "/"}
}

// GetStats returns a snapshot of the call counters.
func (fsys *FileSystem) GetStats() Stats {
	return Stats{
		Lookups:  atomic.LoadInt64(&fsys.stats.Lookups),
		Readdirs: atomic.LoadInt64(&fsys.stats.Readdirs),
		Opens:    atomic.LoadInt64(&fsys.stats.Opens),
		Reads:    atomic.LoadInt64(&fsys.stats.Reads),
		Releases: atomic.LoadInt64(&fsys.stats.Releases),
		Rejected: atomic.LoadInt64(&fsys.stats.Rejected),
		Errors:   atomic.LoadInt64(&fsys.stats.Errors),
	}
}

func (fsys *FileSystem) errno(op, path string, err error) syscall.Errno {
	atomic.AddInt64(&fsys.stats.Errors, 1)
	errno := errors.ToErrno(err)
	if errno == syscall.EIO {
		fsys.logger.Warn("operation failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
	}
	return errno
}

func (fsys *FileSystem) rejectWrite(op, path string) syscall.Errno {
	atomic.AddInt64(&fsys.stats.Rejected, 1)
	fsys.logger.Debug("write rejected", zap.String("op", op), zap.String("path", path))
	return syscall.EROFS
}

// fillAttr copies a metadata block into a kernel attribute record.
func fillAttr(out *fuse.Attr, b metadata.Block) {
	out.Mode = b.Mode
	out.Nlink = b.Nlink
	out.Owner = fuse.Owner{Uid: b.UID, Gid: b.GID}
	out.Size = nonNegative(b.Size())
	out.Blocks = blocks(b.Size())
	out.Blksize = b.Blksize
	out.Atime = nonNegative(b.Atime)
	out.Mtime = nonNegative(b.Mtime)
	out.Ctime = nonNegative(b.Ctime)
}

// entry resolves the attributes of a child about to be looked up.
func (fsys *FileSystem) entry(path string, out *fuse.EntryOut) (metadata.Block, syscall.Errno) {
	atomic.AddInt64(&fsys.stats.Lookups, 1)
	b, err := fsys.ops.GetAttributes(path)
	if err != nil {
		return metadata.Block{}, fsys.errno("lookup", path, err)
	}
	fillAttr(&out.Attr, b)
	return b, 0
}

func (fsys *FileSystem) statfs(out *fuse.StatfsOut) {
	out.Bsize = metadata.BlockSize
	out.Frsize = metadata.BlockSize
	out.NameLen = 255
}

// DirectoryNode represents a directory in the filesystem
type DirectoryNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.InodeEmbedder = (*DirectoryNode)(nil)
var _ fs.NodeLookuper = (*DirectoryNode)(nil)
var _ fs.NodeGetattrer = (*DirectoryNode)(nil)
var _ fs.NodeReaddirer = (*DirectoryNode)(nil)
var _ fs.NodeStatfser = (*DirectoryNode)(nil)
var _ fs.NodeCreater = (*DirectoryNode)(nil)
var _ fs.NodeMkdirer = (*DirectoryNode)(nil)
var _ fs.NodeUnlinker = (*DirectoryNode)(nil)
var _ fs.NodeRmdirer = (*DirectoryNode)(nil)
var _ fs.NodeRenamer = (*DirectoryNode)(nil)

// Lookup looks up a child node by name
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := childPath(n.path, name)
	b, errno := n.fsys.entry(p, out)
	if errno != 0 {
		return nil, errno
	}

	var child fs.InodeEmbedder
	if b.IsDir() {
		child = &DirectoryNode{fsys: n.fsys, path: p}
	} else {
		child = &FileNode{fsys: n.fsys, path: p}
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: b.Mode & metadata.TypeMask}), 0
}

// Getattr gets directory attributes
func (n *DirectoryNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	b, err := n.fsys.ops.GetAttributes(n.path)
	if err != nil {
		return n.fsys.errno("getattr", n.path, err)
	}
	fillAttr(&out.Attr, b)
	return 0
}

// Readdir reads directory contents
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	atomic.AddInt64(&n.fsys.stats.Readdirs, 1)
	names, err := n.fsys.ops.ListDirectory(n.path)
	if err != nil {
		return nil, n.fsys.errno("readdir", n.path, err)
	}

	names = visibleNames(names)
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		mode := uint32(fuse.S_IFREG)
		if b, err := n.fsys.ops.GetAttributes(childPath(n.path, name)); err == nil {
			mode = b.Mode & metadata.TypeMask
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// Statfs reports an empty read-only filesystem.
func (n *DirectoryNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.fsys.statfs(out)
	return 0
}

func (n *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, n.fsys.rejectWrite("create", childPath(n.path, name))
}

func (n *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, n.fsys.rejectWrite("mkdir", childPath(n.path, name))
}

func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.fsys.rejectWrite("unlink", childPath(n.path, name))
}

func (n *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.fsys.rejectWrite("rmdir", childPath(n.path, name))
}

func (n *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return n.fsys.rejectWrite("rename", childPath(n.path, name))
}

// FileNode represents a file in the filesystem
type FileNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.InodeEmbedder = (*FileNode)(nil)
var _ fs.NodeGetattrer = (*FileNode)(nil)
var _ fs.NodeOpener = (*FileNode)(nil)
var _ fs.NodeReader = (*FileNode)(nil)
var _ fs.NodeReleaser = (*FileNode)(nil)
var _ fs.NodeWriter = (*FileNode)(nil)
var _ fs.NodeSetattrer = (*FileNode)(nil)

// Getattr gets file attributes
func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	b, err := f.fsys.ops.GetAttributes(f.path)
	if err != nil {
		return f.fsys.errno("getattr", f.path, err)
	}
	fillAttr(&out.Attr, b)
	return 0
}

// Open opens a file for reading. Content is fetched on the first read.
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, f.fsys.rejectWrite("open", f.path)
	}
	atomic.AddInt64(&f.fsys.stats.Opens, 1)
	if err := f.fsys.ops.OpenFile(f.path); err != nil {
		return nil, 0, f.fsys.errno("open", f.path, err)
	}
	return nil, 0, 0
}

// Read reads file content at off into a buffer of len(dest) bytes.
func (f *FileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	atomic.AddInt64(&f.fsys.stats.Reads, 1)
	data, err := f.fsys.ops.ReadFile(ctx, f.path, len(dest), off)
	if err != nil {
		return nil, f.fsys.errno("read", f.path, err)
	}
	return fuse.ReadResultData(data), 0
}

// Release closes the file and drops its cached content.
func (f *FileNode) Release(ctx context.Context, fh fs.FileHandle) syscall.Errno {
	atomic.AddInt64(&f.fsys.stats.Releases, 1)
	if err := f.fsys.ops.CloseFile(f.path); err != nil {
		return f.fsys.errno("release", f.path, err)
	}
	return 0
}

func (f *FileNode) Write(ctx context.Context, fh fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	return 0, f.fsys.rejectWrite("write", f.path)
}

func (f *FileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return f.fsys.rejectWrite("setattr", f.path)
}
