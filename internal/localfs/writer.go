package localfs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/schaermu/tmplsync/internal/syncerr"
)

// Writer writes fetched content below a project root. All local mutation of a
// sync run goes through it.
type Writer struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
	verify bool
}

// NewWriter creates a writer rooted at root. When verify is set every write is
// read back and compared; a mismatch is only logged.
func NewWriter(fs afero.Fs, root string, logger *slog.Logger, verify bool) *Writer {
	return &Writer{
		fs:     fs,
		root:   filepath.Clean(root),
		logger: logger,
		verify: verify,
	}
}

// Root returns the project root
func (w *Writer) Root() string {
	return w.root
}

// Write replaces the file at relDest (slash-separated, relative to the root)
// with content, creating parent directories as needed
func (w *Writer) Write(relDest string, content []byte) error {
	target, err := w.resolve(relDest)
	if err != nil {
		return err
	}
	w.logger.Debug("target path", "path", target)

	dir := filepath.Dir(target)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return &syncerr.Error{Kind: syncerr.KindDirectoryCreate, Path: dir, Err: err}
	}
	if info, err := w.fs.Stat(dir); err != nil {
		return &syncerr.Error{Kind: syncerr.KindDirectoryCreate, Path: dir, Err: err}
	} else if !info.IsDir() {
		return &syncerr.Error{Kind: syncerr.KindDirectoryCreate, Path: dir, Err: errors.New("path exists and is not a directory")}
	}

	w.inspect(target, content)

	if err := w.replace(target, content); err != nil {
		return &syncerr.Error{Kind: syncerr.KindWrite, Path: relDest, Err: err}
	}

	if w.verify {
		w.verifyWrite(target, content)
	}
	return nil
}

// resolve joins relDest onto the root and refuses paths that leave it
func (w *Writer) resolve(relDest string) (string, error) {
	if relDest == "" || strings.HasPrefix(relDest, "/") || filepath.IsAbs(relDest) {
		return "", syncerr.Invariant(relDest, "destination must be relative to the project root")
	}

	target := filepath.Join(w.root, filepath.FromSlash(relDest))
	rel, err := filepath.Rel(w.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", syncerr.Invariant(relDest, "destination escapes the project root %s", w.root)
	}
	return target, nil
}

// replace writes content to a temp file next to target and renames it into
// place. An existing file keeps its permissions.
func (w *Writer) replace(target string, content []byte) error {
	mode := os.FileMode(0o644)
	if info, err := w.fs.Stat(target); err == nil && info.Mode().IsRegular() {
		mode = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(w.fs, filepath.Dir(target), ".tmplsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = w.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := w.fs.Chmod(tmpPath, mode); err != nil {
		return err
	}

	return w.fs.Rename(tmpPath, target)
}

// inspect logs how the new content relates to what is on disk. It has no
// influence on whether the write happens.
func (w *Writer) inspect(target string, content []byte) {
	if !w.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	existing, err := afero.ReadFile(w.fs, target)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Debug("new file will be created", "path", target, "new_bytes", len(content))
		} else {
			w.logger.Debug("existing file not readable", "path", target, "error", err)
		}
		return
	}

	differs := !bytes.Equal(existing, content)
	attrs := []any{
		"path", target,
		"existing_bytes", len(existing),
		"new_bytes", len(content),
		"content_differs", differs,
	}
	if differs {
		added, removed := lineDiff(string(existing), string(content))
		attrs = append(attrs, "lines_added", added, "lines_removed", removed)
	}
	w.logger.Debug("file exists", attrs...)
}

// verifyWrite reads target back and logs whether it matches content
func (w *Writer) verifyWrite(target string, content []byte) {
	got, err := afero.ReadFile(w.fs, target)
	if err != nil {
		w.logger.Warn("write verification failed", "path", target, "error", err)
		return
	}
	if !bytes.Equal(got, content) {
		w.logger.Warn("write verification mismatch", "path", target,
			"expected_bytes", len(content), "actual_bytes", len(got))
		return
	}
	w.logger.Debug("write verification", "path", target, "bytes", len(got), "result", "SUCCESS")
}

// lineDiff counts lines added and removed between two texts
func lineDiff(oldText, newText string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if d.Text != "" && !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}
