package tree

import (
	"strings"

	"github.com/drivefs/drivefs/pkg/errors"
)

// Separator is the path separator of the filesystem namespace.
const Separator = "/"

// SplitPath returns the components of an absolute path from the root
// toward the leaf; "/" yields no components. Empty components from repeated
// or trailing separators are kept. No node has an empty name, so a path
// containing one never resolves.
func SplitPath(path string) []string {
	rest := strings.TrimPrefix(path, Separator)
	if rest == "" {
		return []string{}
	}
	return strings.Split(rest, Separator)
}

// Resolve walks root along path. It fails with PATH_INVALID when path is
// empty or relative and with FILE_NOT_FOUND when a component is missing.
// Files have no children, so any path that continues past a file is not
// found.
func Resolve(root *DirectoryNode, path string) (Node, error) {
	if path == "" || !strings.HasPrefix(path, Separator) {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "path must be absolute").
			WithComponent("tree").
			WithOperation("resolve").
			WithContext("path", path)
	}
	if root == nil {
		return nil, errors.NewError(errors.ErrCodeNotInitialized, "tree has not been synced").
			WithComponent("tree").
			WithOperation("resolve")
	}

	var cur Node = root
	for _, name := range SplitPath(path) {
		dir, ok := cur.(*DirectoryNode)
		if !ok {
			return nil, errors.NewError(errors.ErrCodeFileNotFound, "no such entry").
				WithComponent("tree").
				WithOperation("resolve").
				WithContext("path", path)
		}
		next, err := dir.Child(name)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// ResolveFile resolves path and requires the result to be a file.
// Directories yield FILE_NOT_FOUND.
func ResolveFile(root *DirectoryNode, path string) (*FileNode, error) {
	n, err := Resolve(root, path)
	if err != nil {
		return nil, err
	}
	f, ok := n.(*FileNode)
	if !ok {
		return nil, errors.NewError(errors.ErrCodeFileNotFound, "not a regular file").
			WithComponent("tree").
			WithOperation("resolve").
			WithContext("path", path)
	}
	return f, nil
}

// ResolveDir resolves path and requires the result to be a directory.
func ResolveDir(root *DirectoryNode, path string) (*DirectoryNode, error) {
	n, err := Resolve(root, path)
	if err != nil {
		return nil, err
	}
	d, ok := n.(*DirectoryNode)
	if !ok {
		return nil, errors.NewError(errors.ErrCodeFileNotFound, "not a directory").
			WithComponent("tree").
			WithOperation("resolve").
			WithContext("path", path)
	}
	return d, nil
}
