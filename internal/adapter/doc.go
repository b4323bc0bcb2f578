/*
Package adapter connects the filesystem-protocol layer to the remote document
tree.

The Adapter owns the current tree and answers the per-call contract of the
mount: list a directory, return attributes, open, read and close a file. All
calls are path based and resolve against whatever tree the latest sync
produced.

	┌─────────────────────────────────────────────┐
	│           Kernel VFS / FUSE host            │
	└─────────────────────────────────────────────┘
	                      │ path
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                  │ ← This Package
	│  • Remote listing sync                      │
	│  • Path resolution                          │
	│  • Open / read / release state              │
	└─────────────────────────────────────────────┘
	          │                       │
	┌─────────┴─────────┐   ┌─────────┴─────────┐
	│   tree (nodes)    │   │  remote.Client    │
	└───────────────────┘   └───────────────────┘

# Sync

New performs the first sync and fails if it fails. Refresh may be called at
any time and replaces the whole tree; with a refresh interval configured,
Start runs Refresh periodically until Stop. A failed periodic refresh keeps
the previous tree.

# Content

Opening a file never touches the network. The first read after an open
fetches the whole object in one range request and later reads slice the
cached copy. Closing discards the copy. Opens are not reference counted, so
one close ends the cache for every reader of that file.

# Concurrency

Every operation takes the adapter mutex for its full duration, including the
content fetch. Mounts default to single-threaded dispatch; the mutex keeps
the state machine consistent when multi-threaded dispatch is enabled.

# Usage

	a, err := adapter.New(ctx, adapter.Options{Client: client, Logger: logger})
	if err != nil {
		return err
	}
	names, err := a.ListDirectory("/")
	...
	if err := a.OpenFile("/report.txt"); err != nil {
		return err
	}
	data, err := a.ReadFile(ctx, "/report.txt", 4096, 0)
	...
	_ = a.CloseFile("/report.txt")
*/
package adapter
