// ABOUTME: Transport contract for enumerating, pulling and deleting remote artifacts
// ABOUTME: Also defines the name filters used to split artifacts from screenshots

package artifact

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrRemoteMissing indicates the remote path does not exist.
var ErrRemoteMissing = errors.New("remote path does not exist")

// Filter selects remote file names (base names, not full paths).
type Filter func(name string) bool

// Transport reaches the device-side filesystem. Remote identifiers are
// slash-separated paths as returned by List.
type Transport interface {
	// List returns the remote files directly under dir accepted by filter.
	List(ctx context.Context, dir string, filter Filter) ([]string, error)
	// Pull copies one remote file to localPath.
	Pull(ctx context.Context, remote, localPath string) error
	// Delete removes one remote file.
	Delete(ctx context.Context, remote string) error
	// PullDir copies the remote directory tree into localDir.
	PullDir(ctx context.Context, remoteDir, localDir string) error
}

var screenshotExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// IsScreenshot accepts image files.
func IsScreenshot(name string) bool {
	return screenshotExts[strings.ToLower(path.Ext(name))]
}

// IsArtifact accepts every non-hidden file that is not a screenshot.
func IsArtifact(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !IsScreenshot(name)
}
