//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/metadata"
	"github.com/drivefs/drivefs/pkg/errors"
)

// CgoFuseFS serves Operations through cgofuse, which reaches WinFsp on
// Windows and libfuse elsewhere. Paths arrive absolute and slash separated.
type CgoFuseFS struct {
	fuse.FileSystemBase

	ops    Operations
	config *MountConfig
	logger *zap.Logger
	stats  Stats

	mu      sync.Mutex
	host    *fuse.FileSystemHost
	mounted bool
	ready   chan struct{}
	done    chan struct{}
}

// NewCgoFuseFS creates a new cgofuse-based filesystem
func NewCgoFuseFS(ops Operations, config *MountConfig, logger *zap.Logger) *CgoFuseFS {
	if config == nil {
		config = &MountConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.options()
	return &CgoFuseFS{
		ops:    ops,
		config: config,
		logger: logger.With(zap.String("component", "fuse")),
	}
}

// GetStats returns a snapshot of the call counters.
func (fs *CgoFuseFS) GetStats() Stats {
	return Stats{
		Lookups:  atomic.LoadInt64(&fs.stats.Lookups),
		Readdirs: atomic.LoadInt64(&fs.stats.Readdirs),
		Opens:    atomic.LoadInt64(&fs.stats.Opens),
		Reads:    atomic.LoadInt64(&fs.stats.Reads),
		Releases: atomic.LoadInt64(&fs.stats.Releases),
		Rejected: atomic.LoadInt64(&fs.stats.Rejected),
		Errors:   atomic.LoadInt64(&fs.stats.Errors),
	}
}

// errc converts err into a negated cgofuse error number.
func (fs *CgoFuseFS) errc(op, path string, err error) int {
	atomic.AddInt64(&fs.stats.Errors, 1)
	errno := errors.ToErrno(err)
	if errno == syscall.EIO {
		fs.logger.Warn("operation failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
	}
	return -hostErrno(errno)
}

// hostErrno renumbers a POSIX errno for cgofuse, whose constants differ
// from package syscall on Windows.
func hostErrno(errno syscall.Errno) int {
	switch errno {
	case syscall.EINVAL:
		return fuse.EINVAL
	case syscall.ENOENT:
		return fuse.ENOENT
	case syscall.EBADF:
		return fuse.EBADF
	case syscall.EROFS:
		return fuse.EROFS
	default:
		return fuse.EIO
	}
}

func (fs *CgoFuseFS) rejectWrite(op, path string) int {
	atomic.AddInt64(&fs.stats.Rejected, 1)
	fs.logger.Debug("write rejected", zap.String("op", op), zap.String("path", path))
	return -fuse.EROFS
}

func fillStat(stat *fuse.Stat_t, b metadata.Block) {
	stat.Mode = b.Mode
	stat.Nlink = b.Nlink
	stat.Uid = b.UID
	stat.Gid = b.GID
	stat.Size = b.Size()
	stat.Blksize = int64(b.Blksize)
	stat.Blocks = int64(blocks(b.Size()))
	stat.Atim = fuse.NewTimespec(time.Unix(b.Atime, 0))
	stat.Mtim = fuse.NewTimespec(time.Unix(b.Mtime, 0))
	stat.Ctim = fuse.NewTimespec(time.Unix(b.Ctime, 0))
}

// Init is called by the host once the mount is live.
func (fs *CgoFuseFS) Init() {
	fs.mu.Lock()
	ready := fs.ready
	fs.mu.Unlock()
	if ready != nil {
		close(ready)
	}
}

// Getattr gets file attributes
func (fs *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	atomic.AddInt64(&fs.stats.Lookups, 1)
	b, err := fs.ops.GetAttributes(path)
	if err != nil {
		return fs.errc("getattr", path, err)
	}
	fillStat(stat, b)
	return 0
}

// Opendir checks that path is a listable directory.
func (fs *CgoFuseFS) Opendir(path string) (int, uint64) {
	if _, err := fs.ops.ListDirectory(path); err != nil {
		return fs.errc("opendir", path, err), ^uint64(0)
	}
	return 0, 0
}

// Readdir reads directory contents
func (fs *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	atomic.AddInt64(&fs.stats.Readdirs, 1)
	names, err := fs.ops.ListDirectory(path)
	if err != nil {
		return fs.errc("readdir", path, err)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, name := range visibleNames(names) {
		var st *fuse.Stat_t
		if b, err := fs.ops.GetAttributes(childPath(path, name)); err == nil {
			st = &fuse.Stat_t{}
			fillStat(st, b)
		}
		if !fill(name, st, 0) {
			break
		}
	}
	return 0
}

// Open opens a file for reading. Content is fetched on the first read.
func (fs *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	if flags&fuse.O_ACCMODE != fuse.O_RDONLY || flags&(fuse.O_TRUNC|fuse.O_APPEND) != 0 {
		return fs.rejectWrite("open", path), ^uint64(0)
	}
	atomic.AddInt64(&fs.stats.Opens, 1)
	if err := fs.ops.OpenFile(path); err != nil {
		return fs.errc("open", path, err), ^uint64(0)
	}
	return 0, 0
}

// Read reads up to len(buff) bytes at ofst.
func (fs *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	atomic.AddInt64(&fs.stats.Reads, 1)
	data, err := fs.ops.ReadFile(context.Background(), path, len(buff), ofst)
	if err != nil {
		return fs.errc("read", path, err)
	}
	return copy(buff, data)
}

// Release closes the file and drops its cached content.
func (fs *CgoFuseFS) Release(path string, fh uint64) int {
	atomic.AddInt64(&fs.stats.Releases, 1)
	if err := fs.ops.CloseFile(path); err != nil {
		return fs.errc("release", path, err)
	}
	return 0
}

// Statfs reports an empty read-only filesystem.
func (fs *CgoFuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = metadata.BlockSize
	stat.Frsize = metadata.BlockSize
	stat.Namemax = 255
	stat.Flag = 1 // ST_RDONLY
	return 0
}

func (fs *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	return fs.rejectWrite("create", path), ^uint64(0)
}

func (fs *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	return fs.rejectWrite("write", path)
}

func (fs *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	return fs.rejectWrite("truncate", path)
}

func (fs *CgoFuseFS) Mkdir(path string, mode uint32) int {
	return fs.rejectWrite("mkdir", path)
}

func (fs *CgoFuseFS) Unlink(path string) int {
	return fs.rejectWrite("unlink", path)
}

func (fs *CgoFuseFS) Rmdir(path string) int {
	return fs.rejectWrite("rmdir", path)
}

func (fs *CgoFuseFS) Rename(oldpath string, newpath string) int {
	return fs.rejectWrite("rename", oldpath)
}

func (fs *CgoFuseFS) Chmod(path string, mode uint32) int {
	return fs.rejectWrite("chmod", path)
}

func (fs *CgoFuseFS) Chown(path string, uid uint32, gid uint32) int {
	return fs.rejectWrite("chown", path)
}

func (fs *CgoFuseFS) Utimens(path string, tmsp []fuse.Timespec) int {
	return fs.rejectWrite("utimens", path)
}
