//go:build cgofuse
// +build cgofuse

package fuse

import (
	"go.uber.org/zap"
)

// CreatePlatformMountManager creates the cgofuse mount manager
func CreatePlatformMountManager(ops Operations, config *MountConfig, logger *zap.Logger) PlatformFileSystem {
	return NewCgoFuseFS(ops, config, logger)
}
