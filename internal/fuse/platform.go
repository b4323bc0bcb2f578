//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"go.uber.org/zap"
)

// CreatePlatformMountManager creates the go-fuse mount manager
func CreatePlatformMountManager(ops Operations, config *MountConfig, logger *zap.Logger) PlatformFileSystem {
	return NewMountManager(NewFileSystem(ops, logger), config, logger)
}
