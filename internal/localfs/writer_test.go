package localfs

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/tmplsync/internal/syncerr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestWrite_CreatesParents(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/project", discardLogger(), false)

	require.NoError(t, w.Write(".claude/skills/sub/c.md", []byte("c")))

	got, err := afero.ReadFile(fs, "/project/.claude/skills/sub/c.md")
	require.NoError(t, err)
	assert.Equal(t, "c", string(got))

	info, err := fs.Stat("/project/.claude/skills/sub")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWrite_OverwritesUnconditionally(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/CLAUDE.md", []byte("local edits\nmore\n"), 0o644))
	w := NewWriter(fs, "/project", discardLogger(), false)

	require.NoError(t, w.Write("CLAUDE.md", []byte("upstream\n")))

	got, err := afero.ReadFile(fs, "/project/CLAUDE.md")
	require.NoError(t, err)
	assert.Equal(t, "upstream\n", string(got))
}

func TestWrite_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/project", discardLogger(), false)

	for i := 0; i < 2; i++ {
		require.NoError(t, w.Write("docs/design.md.sample", []byte("same")))
	}

	got, err := afero.ReadFile(fs, "/project/docs/design.md.sample")
	require.NoError(t, err)
	assert.Equal(t, "same", string(got))
}

func TestWrite_LeavesNoTempFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "/project", discardLogger(), false)

	require.NoError(t, w.Write("docs/a.md", []byte("a")))

	entries, err := afero.ReadDir(fs, "/project/docs")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.md", entries[0].Name())
}

func TestWrite_KeepsExistingMode(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "run.sh")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o755))

	w := NewWriter(afero.NewOsFs(), root, discardLogger(), false)
	require.NoError(t, w.Write("run.sh", []byte("new")))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	require.NoError(t, w.Write("fresh.md", []byte("x")))
	info, err = os.Stat(filepath.Join(root, "fresh.md"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWrite_RejectsEscapingPaths(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs(), "/project", discardLogger(), false)

	for _, p := range []string{"", "/etc/passwd", "../outside.md", "docs/../../x", "."} {
		t.Run(p, func(t *testing.T) {
			err := w.Write(p, []byte("x"))
			require.Error(t, err)
			assert.True(t, syncerr.Is(err, syncerr.KindInvariantViolation))
		})
	}
}

func TestWrite_DirectoryCollision(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs"), []byte("i am a file"), 0o644))

	w := NewWriter(afero.NewOsFs(), root, discardLogger(), false)
	err := w.Write("docs/design.md.sample", []byte("x"))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDirectoryCreate))
	assert.Contains(t, err.Error(), "failed to create directory")
}

func TestWrite_TargetIsDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CLAUDE.md", "nested"), 0o755))

	w := NewWriter(afero.NewOsFs(), root, discardLogger(), false)
	err := w.Write("CLAUDE.md", []byte("x"))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindWrite))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestWrite_DebugDiagnostics(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/CLAUDE.md", []byte("a\nb\nc\n"), 0o644))

	var buf bytes.Buffer
	w := NewWriter(fs, "/project", debugLogger(&buf), true)

	require.NoError(t, w.Write("CLAUDE.md", []byte("a\nB\nc\nd\n")))
	require.NoError(t, w.Write("new.md", []byte("x")))

	out := buf.String()
	assert.Contains(t, out, "content_differs=true")
	assert.Contains(t, out, "lines_added=2")
	assert.Contains(t, out, "lines_removed=1")
	assert.Contains(t, out, "new file will be created")
	assert.Contains(t, out, "result=SUCCESS")
}

func TestWrite_NoDiagnosticsAboveDebug(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	w := NewWriter(fs, "/project", logger, false)

	require.NoError(t, w.Write("a.md", []byte("x")))
	assert.Empty(t, buf.String())
}

// tamperFs corrupts every file right after it is renamed into place
type tamperFs struct {
	afero.Fs
}

func (f tamperFs) Rename(oldname, newname string) error {
	if err := f.Fs.Rename(oldname, newname); err != nil {
		return err
	}
	return afero.WriteFile(f.Fs, newname, []byte("tampered"), 0o644)
}

func TestWrite_VerifyMismatchOnlyWarns(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(tamperFs{afero.NewMemMapFs()}, "/project", debugLogger(&buf), true)

	require.NoError(t, w.Write("a.md", []byte("expected")))
	assert.Contains(t, buf.String(), "write verification mismatch")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestLineDiff(t *testing.T) {
	tests := []struct {
		name        string
		old, new    string
		wantAdded   int
		wantRemoved int
	}{
		{name: "identical", old: "a\nb\n", new: "a\nb\n"},
		{name: "append", old: "a\n", new: "a\nb\n", wantAdded: 1},
		{name: "remove", old: "a\nb\nc\n", new: "a\n", wantRemoved: 2},
		{name: "replace", old: "a\nb\n", new: "a\nc\n", wantAdded: 1, wantRemoved: 1},
		{name: "no trailing newline", old: "", new: "x", wantAdded: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := lineDiff(tt.old, tt.new)
			assert.Equal(t, tt.wantAdded, added)
			assert.Equal(t, tt.wantRemoved, removed)
		})
	}
}

func TestRoot(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs(), "/project/", discardLogger(), false)
	assert.Equal(t, "/project", w.Root())
}
