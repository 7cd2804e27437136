// Package local implements adapter.Adapter over the local disk.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// Adapter is a mods root on the local disk
type Adapter struct {
	root string
}

// New opens root, which must be an existing directory
func New(root string) (*Adapter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, errors.Join(domain.ErrNotFound, err)
	case err != nil:
		return nil, mapError(err)
	case !info.IsDir():
		return nil, domain.ErrNotDirectory
	}
	return &Adapter{root: abs}, nil
}

// Root implements adapter.Adapter
func (a *Adapter) Root() string { return a.root }

// Abs returns the OS path of a root-relative path
func (a *Adapter) Abs(rel string) (string, error) {
	return a.resolve(rel)
}

// resolve joins rel onto the root and rejects anything that escapes it.
// filepath.Rel catches siblings such as C:\mods2 next to C:\mods.
func (a *Adapter) resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return a.root, nil
	}

	rel = filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", domain.ErrPermissionDenied
	}

	full := filepath.Join(a.root, rel)
	back, err := filepath.Rel(a.root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", domain.ErrPermissionDenied
	}
	return full, nil
}

// List implements adapter.Adapter. Symlinks are reported as KindSymlink and
// never followed, so a linked mod folder cannot make the scan loop.
func (a *Adapter) List(ctx context.Context, dir string) ([]domain.DirEntry, error) {
	full, err := a.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, mapError(err)
	}

	base := filepath.ToSlash(filepath.Clean(filepath.FromSlash(dir)))
	out := make([]domain.DirEntry, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := domain.DirEntry{Path: path.Join(base, e.Name()), Name: e.Name()}
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			item.Kind = domain.KindSymlink
		case e.IsDir():
			item.Kind = domain.KindDir
		default:
			info, err := e.Info()
			if err != nil {
				// removed between ReadDir and Info
				continue
			}
			item.Kind = domain.KindFile
			item.Size = info.Size()
		}
		out = append(out, item)
	}
	return out, nil
}

// Read implements adapter.Adapter
func (a *Adapter) Read(ctx context.Context, rel string) (io.ReadCloser, error) {
	full, err := a.resolve(rel)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, mapError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError(err)
	}
	if info.IsDir() {
		f.Close()
		return nil, domain.ErrNotFile
	}
	return f, nil
}

// Write implements adapter.Adapter through a temp file in the target
// directory, synced and renamed over the destination.
func (a *Adapter) Write(ctx context.Context, rel string, r io.Reader) error {
	full, err := a.resolve(rel)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return mapError(err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return mapError(err)
	}
	tmpName := tmp.Name()

	_, err = io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0644)
	}
	if err == nil {
		err = os.Rename(tmpName, full)
	}
	if err != nil {
		os.Remove(tmpName)
		return mapError(err)
	}
	return nil
}

// Exists implements adapter.Adapter
func (a *Adapter) Exists(ctx context.Context, rel string) (bool, error) {
	full, err := a.resolve(rel)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, mapError(err)
	}
}

// mapError adds the matching domain sentinel in front of an OS error
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return errors.Join(domain.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(domain.ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrExist):
		return errors.Join(domain.ErrAlreadyExists, err)
	case errors.Is(err, syscall.ENOTDIR):
		return errors.Join(domain.ErrNotDirectory, err)
	}
	return err
}
