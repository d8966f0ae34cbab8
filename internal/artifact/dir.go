// ABOUTME: DirTransport treats a locally mounted directory as the remote side
// ABOUTME: Used by the fake explorer and by tests

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DirTransport implements Transport over the local filesystem.
type DirTransport struct{}

// NewDirTransport returns a transport whose remote paths are local paths.
func NewDirTransport() *DirTransport {
	return &DirTransport{}
}

// List implements Transport.
func (t *DirTransport) List(ctx context.Context, dir string, filter Filter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRemoteMissing, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if filter != nil && !filter(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Pull implements Transport.
func (t *DirTransport) Pull(ctx context.Context, remote, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyFile(remote, localPath)
}

// Delete implements Transport.
func (t *DirTransport) Delete(ctx context.Context, remote string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(remote); err != nil {
		return fmt.Errorf("delete %s: %w", remote, err)
	}
	return nil
}

// PullDir implements Transport.
func (t *DirTransport) PullDir(ctx context.Context, remoteDir, localDir string) error {
	if _, err := os.Stat(remoteDir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRemoteMissing, remoteDir)
	}
	return filepath.WalkDir(remoteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(remoteDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(localDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}

// copyFile writes src to dst through a temp file in dst's directory so a
// partially written copy is never visible under dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", dst, err)
	}
	return nil
}
