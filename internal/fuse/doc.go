/*
Package fuse exposes DriveFS Operations to the kernel through FUSE.

Two hosts are provided and selected at build time:

	┌─────────────────────────────────────────────┐
	│              Kernel VFS Layer               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              FUSE Layer                     │  ← This Package
	│  ┌─────────────────┐  ┌──────────────────┐  │
	│  │ go-fuse         │  │ cgofuse          │  │
	│  │ (default)       │  │ (-tags cgofuse)  │  │
	│  │ Linux, macOS    │  │ WinFsp, libfuse  │  │
	│  └─────────────────┘  └──────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │ path
	┌─────────────────────────────────────────────┐
	│        Operations (*adapter.Adapter)        │
	└─────────────────────────────────────────────┘

Both hosts are thin: they translate each protocol call into one path-based
Operations call and map the result onto the host's error numbers.

	getattr / lookup   GetAttributes
	readdir            ListDirectory ("." and ".." are left to the host)
	open               OpenFile
	read               ReadFile
	release            CloseFile

The mount is read-only. It is mounted with the "ro" option, opens asking for
write access fail with EROFS, and so do create, mkdir, unlink, rmdir,
rename, write and setattr.

Error mapping:

	invalid path, bad argument   EINVAL
	no such entry                ENOENT
	read before open             EBADF
	remote or internal failure   EIO

# Usage

	mount := fuse.CreatePlatformMountManager(adapter, &fuse.MountConfig{
		MountPoint: "/mnt/docs",
		Options:    fuse.DefaultMountOptions(),
	}, logger)
	if err := mount.Mount(ctx); err != nil {
		return err
	}
	<-mount.Done()
*/
package fuse
