//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/drivefs/drivefs/pkg/errors"
)

// MountManager manages FUSE mount operations
type MountManager struct {
	filesystem *FileSystem
	config     *MountConfig
	logger     *zap.Logger

	mu      sync.Mutex
	server  *fuse.Server
	mounted bool
	done    chan struct{}
}

// NewMountManager creates a new mount manager
func NewMountManager(filesystem *FileSystem, config *MountConfig, logger *zap.Logger) *MountManager {
	if config == nil {
		config = &MountConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.options()
	return &MountManager{
		filesystem: filesystem,
		config:     config,
		logger:     logger.With(zap.String("component", "mount")),
	}
}

// Mount mounts the filesystem at the configured mount point and starts
// serving requests in the background.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return errors.NewError(errors.ErrCodeMountFailed, "filesystem is already mounted").
			WithComponent("mount").
			WithContext("mountpoint", m.config.MountPoint)
	}

	if err := m.validateMountPoint(); err != nil {
		return errors.NewError(errors.ErrCodeMountFailed, "invalid mount point").
			WithComponent("mount").
			WithContext("mountpoint", m.config.MountPoint).
			WithCause(err)
	}

	server, err := fs.Mount(m.config.MountPoint, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return errors.NewError(errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithComponent("mount").
			WithContext("mountpoint", m.config.MountPoint).
			WithCause(err)
	}

	m.server = server
	m.mounted = true
	m.done = make(chan struct{})
	m.logger.Info("mounted", zap.String("mountpoint", m.config.MountPoint))

	go func(server *fuse.Server, done chan struct{}) {
		server.Wait()
		m.mu.Lock()
		if m.server == server {
			m.mounted = false
			m.server = nil
		}
		m.mu.Unlock()
		close(done)
		m.logger.Info("FUSE server stopped", zap.String("mountpoint", m.config.MountPoint))
	}(server, m.done)

	return nil
}

// Unmount unmounts the filesystem
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	server := m.server
	mounted := m.mounted
	m.mu.Unlock()

	if !mounted || server == nil {
		return errors.NewError(errors.ErrCodeUnmountFailed, "filesystem is not mounted").
			WithComponent("mount")
	}

	m.logger.Info("unmounting", zap.String("mountpoint", m.config.MountPoint))
	if err := server.Unmount(); err != nil {
		m.logger.Warn("unmount failed, trying lazy unmount", zap.Error(err))
		if lazyErr := m.lazyUnmount(); lazyErr != nil {
			return errors.NewError(errors.ErrCodeUnmountFailed, "unmount failed").
				WithComponent("mount").
				WithContext("mountpoint", m.config.MountPoint).
				WithContext("lazy_error", lazyErr.Error()).
				WithCause(err)
		}
	}

	m.mu.Lock()
	if m.server == server {
		m.mounted = false
		m.server = nil
	}
	m.mu.Unlock()
	return nil
}

// IsMounted reports whether the filesystem is currently mounted
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Done is closed when the FUSE server stops serving, including after an
// external unmount. It is nil before the first Mount.
func (m *MountManager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Wait blocks until the FUSE server stops serving.
func (m *MountManager) Wait() {
	if done := m.Done(); done != nil {
		<-done
	}
}

func (m *MountManager) validateMountPoint() error {
	if m.config.MountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(m.config.MountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", m.config.MountPoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.MountPoint)
	}

	entries, err := os.ReadDir(m.config.MountPoint)
	if err != nil {
		return fmt.Errorf("cannot read mount point directory: %w", err)
	}
	if len(entries) > 0 {
		m.logger.Warn("mount point is not empty", zap.String("mountpoint", m.config.MountPoint))
	}

	if mounted, _ := isMountPoint("/proc/mounts", m.config.MountPoint); mounted {
		return fmt.Errorf("mount point %s is already mounted", m.config.MountPoint)
	}
	return nil
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	o := m.config.options()
	attrTimeout := o.AttrTimeout
	entryTimeout := o.EntryTimeout

	return &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:           o.Subtype,
			FsName:         o.FSName,
			DirectMount:    true,
			Debug:          o.Debug,
			AllowOther:     o.AllowOther,
			SingleThreaded: o.SingleThreaded,
			Options:        []string{"ro"},
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
	}
}

// isMountPoint reports whether dir appears as a mount target in a
// /proc/mounts style table. An unreadable table reports false.
func isMountPoint(table, dir string) (bool, error) {
	data, err := os.ReadFile(table)
	if err != nil {
		return false, err
	}
	want := filepath.Clean(dir)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && filepath.Clean(fields[1]) == want {
			return true, nil
		}
	}
	return false, nil
}

func (m *MountManager) lazyUnmount() error {
	// 2 is MNT_DETACH on Linux.
	return syscall.Unmount(m.config.MountPoint, 2)
}
