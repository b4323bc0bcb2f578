package fuse

import (
	"context"
	"path"
	"time"

	"github.com/drivefs/drivefs/internal/metadata"
)

// Operations is the path-based contract both FUSE hosts dispatch to.
// *adapter.Adapter implements it.
type Operations interface {
	ListDirectory(path string) ([]string, error)
	GetAttributes(path string) (metadata.Block, error)
	OpenFile(path string) error
	ReadFile(ctx context.Context, path string, size int, offset int64) ([]byte, error)
	CloseFile(path string) error
}

// MountConfig contains mount-specific configuration
type MountConfig struct {
	MountPoint string        `yaml:"mount_point"`
	Options    *MountOptions `yaml:"options"`
}

// MountOptions contains FUSE mount options. The mount is always read-only.
type MountOptions struct {
	FSName     string `yaml:"fsname"`
	Subtype    string `yaml:"subtype"`
	AllowOther bool   `yaml:"allow_other"`
	Debug      bool   `yaml:"debug"`
	// SingleThreaded dispatches one request at a time.
	SingleThreaded bool          `yaml:"single_threaded"`
	AttrTimeout    time.Duration `yaml:"attr_timeout"`
	EntryTimeout   time.Duration `yaml:"entry_timeout"`
}

// DefaultMountOptions returns the options used when none are given.
func DefaultMountOptions() *MountOptions {
	return &MountOptions{
		FSName:         "drivefs",
		Subtype:        "drivefs",
		SingleThreaded: true,
		AttrTimeout:    time.Second,
		EntryTimeout:   time.Second,
	}
}

func (c *MountConfig) options() *MountOptions {
	if c.Options == nil {
		c.Options = DefaultMountOptions()
	}
	return c.Options
}

// childPath joins a directory path and an entry name into an absolute path.
func childPath(dir, name string) string {
	return path.Join("/", dir, name)
}

// visibleNames drops the self and parent entries, which hosts synthesize.
func visibleNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "." || n == ".." {
			continue
		}
		out = append(out, n)
	}
	return out
}

// blocks returns the number of 512-byte units covering size.
func blocks(size int64) uint64 {
	if size <= 0 {
		return 0
	}
	return uint64((size + 511) / 512)
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Stats counts protocol calls seen by the filesystem.
type Stats struct {
	Lookups  int64 `json:"lookups"`
	Readdirs int64 `json:"readdirs"`
	Opens    int64 `json:"opens"`
	Reads    int64 `json:"reads"`
	Releases int64 `json:"releases"`
	Rejected int64 `json:"rejected"`
	Errors   int64 `json:"errors"`
}

// PlatformFileSystem is a mountable filesystem host.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	// Done is closed when the host stops serving.
	Done() <-chan struct{}
}
