//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"runtime"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/pkg/errors"
)

// Mount mounts the filesystem and returns once the host reports the mount
// live, the mount fails, or ctx ends.
func (fs *CgoFuseFS) Mount(ctx context.Context) error {
	fs.mu.Lock()
	if fs.mounted {
		fs.mu.Unlock()
		return errors.NewError(errors.ErrCodeMountFailed, "filesystem is already mounted").
			WithComponent("mount")
	}
	fs.host = fuse.NewFileSystemHost(fs)
	fs.ready = make(chan struct{})
	fs.done = make(chan struct{})
	host, ready, done := fs.host, fs.ready, fs.done
	fs.mu.Unlock()

	failed := make(chan struct{})
	go func() {
		ok := host.Mount(fs.config.MountPoint, fs.mountArgs())
		if !ok {
			close(failed)
		}
		fs.mu.Lock()
		fs.mounted = false
		fs.mu.Unlock()
		close(done)
		fs.logger.Info("FUSE host stopped", zap.String("mountpoint", fs.config.MountPoint))
	}()

	select {
	case <-ready:
		fs.mu.Lock()
		fs.mounted = true
		fs.mu.Unlock()
		fs.logger.Info("mounted", zap.String("mountpoint", fs.config.MountPoint))
		return nil
	case <-failed:
		return errors.NewError(errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithComponent("mount").
			WithContext("mountpoint", fs.config.MountPoint)
	case <-ctx.Done():
		host.Unmount()
		return ctx.Err()
	}
}

// Unmount unmounts the filesystem
func (fs *CgoFuseFS) Unmount() error {
	fs.mu.Lock()
	host, mounted := fs.host, fs.mounted
	fs.mu.Unlock()

	if !mounted || host == nil {
		return errors.NewError(errors.ErrCodeUnmountFailed, "filesystem is not mounted").
			WithComponent("mount")
	}
	fs.logger.Info("unmounting", zap.String("mountpoint", fs.config.MountPoint))
	if !host.Unmount() {
		return errors.NewError(errors.ErrCodeUnmountFailed, "unmount failed").
			WithComponent("mount").
			WithContext("mountpoint", fs.config.MountPoint)
	}
	return nil
}

// IsMounted reports whether the filesystem is currently mounted
func (fs *CgoFuseFS) IsMounted() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mounted
}

// Done is closed when the host stops serving. It is nil before Mount.
func (fs *CgoFuseFS) Done() <-chan struct{} {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.done
}

func (fs *CgoFuseFS) mountArgs() []string {
	o := fs.config.options()
	args := []string{"-o", "ro"}
	if o.FSName != "" {
		args = append(args, "-o", "fsname="+o.FSName)
	}
	switch runtime.GOOS {
	case "windows":
		args = append(args, "-o", "FileSystemName="+o.FSName)
	case "darwin":
		args = append(args, "-o", "volname="+o.FSName)
	default:
		if o.Subtype != "" {
			args = append(args, "-o", "subtype="+o.Subtype)
		}
	}
	if o.AllowOther {
		args = append(args, "-o", "allow_other")
	}
	if o.SingleThreaded {
		args = append(args, "-s")
	}
	if o.Debug {
		args = append(args, "-d")
	}
	return args
}
