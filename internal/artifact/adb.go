// ABOUTME: ADBTransport reaches the device filesystem through the adb binary
// ABOUTME: Commands run through a Runner so tests can substitute canned output

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ADBTransport implements Transport with adb shell, pull and rm.
type ADBTransport struct {
	bin    string
	serial string
	run    Runner
}

// NewADBTransport targets the device with serial ("" for the only attached
// device). bin defaults to "adb" and run to ExecRunner.
func NewADBTransport(bin, serial string, run Runner) *ADBTransport {
	if bin == "" {
		bin = "adb"
	}
	if run == nil {
		run = ExecRunner
	}
	return &ADBTransport{bin: bin, serial: serial, run: run}
}

func (t *ADBTransport) adb(ctx context.Context, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+2)
	if t.serial != "" {
		full = append(full, "-s", t.serial)
	}
	full = append(full, args...)
	out, err := t.run(ctx, t.bin, full...)
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", t.bin, strings.Join(full, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// List implements Transport. Entries are listed with `ls -p`, so
// directories carry a trailing slash and are skipped.
func (t *ADBTransport) List(ctx context.Context, dir string, filter Filter) ([]string, error) {
	out, err := t.adb(ctx, "shell", "ls", "-1p", dir)
	text := string(out)
	if strings.Contains(text, "No such file or directory") {
		return nil, fmt.Errorf("%w: %s", ErrRemoteMissing, dir)
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		if filter != nil && !filter(name) {
			continue
		}
		files = append(files, path.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Pull implements Transport.
func (t *ADBTransport) Pull(ctx context.Context, remote, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(localPath), err)
	}
	_, err := t.adb(ctx, "pull", remote, localPath)
	return err
}

// Delete implements Transport.
func (t *ADBTransport) Delete(ctx context.Context, remote string) error {
	_, err := t.adb(ctx, "shell", "rm", "-f", remote)
	return err
}

// PullDir implements Transport. The trailing "/." copies the directory's
// contents rather than nesting the directory itself under localDir.
func (t *ADBTransport) PullDir(ctx context.Context, remoteDir, localDir string) error {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", localDir, err)
	}
	_, err := t.adb(ctx, "pull", strings.TrimSuffix(remoteDir, "/")+"/.", localDir)
	return err
}
