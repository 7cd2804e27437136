// Package adapter abstracts the mods directory so scanning and output
// writing can be exercised against a root-confined view of the disk.
package adapter

import (
	"context"
	"io"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// Adapter reads and writes below one mods root. Paths are slash-separated and
// relative to Root; a path leaving the root fails with domain.ErrPermissionDenied.
type Adapter interface {
	// List returns the children of dir in lexical order.
	// domain.ErrNotFound when dir is missing, domain.ErrNotDirectory when it is a file.
	List(ctx context.Context, dir string) ([]domain.DirEntry, error)

	// Read opens a file; the caller closes it
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write replaces path with the content of r. Readers never observe a
	// partially written file. Parent directories are created.
	Write(ctx context.Context, path string, r io.Reader) error

	Exists(ctx context.Context, path string) (bool, error)

	// Root is the absolute mods root
	Root() string
}
