package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/tmplsync/internal/syncerr"
	"github.com/schaermu/tmplsync/internal/testutil"
)

func TestListFiles_Flattens(t *testing.T) {
	host := testutil.NewFakeHost(t, map[string]string{
		".claude/skills/a.md":      "a",
		".claude/skills/b.md":      "b",
		".claude/skills/sub/c.md":  "c",
		".claude/skills/sub/d.md":  "d",
		".claude/skills/sub/e.md":  "e",
		".claude/other/ignored.md": "x",
		"CLAUDE.md":                "root",
	})
	client := newTestClient(host, nil)

	files, err := client.ListFiles(context.Background(), ".claude/skills")
	require.NoError(t, err)

	assert.Len(t, files, 5)
	assert.ElementsMatch(t, []string{
		".claude/skills/a.md",
		".claude/skills/b.md",
		".claude/skills/sub/c.md",
		".claude/skills/sub/d.md",
		".claude/skills/sub/e.md",
	}, files)
}

func TestListFiles_DepthFirstOrder(t *testing.T) {
	host := testutil.NewFakeHost(t, map[string]string{
		"tpl/a/one.md":    "1",
		"tpl/a/deep/x.md": "x",
		"tpl/b.md":        "b",
		"tpl/c/two.md":    "2",
	})
	client := newTestClient(host, nil)

	files, err := client.ListFiles(context.Background(), "tpl")
	require.NoError(t, err)

	// the fake host lists children by name, like GitHub does
	assert.Equal(t, []string{"tpl/a/deep/x.md", "tpl/a/one.md", "tpl/b.md", "tpl/c/two.md"}, files)
}

func TestListFiles_RequestHeaders(t *testing.T) {
	host := testutil.NewFakeHost(t, map[string]string{"dir/a.md": "a"})
	client := newTestClient(host, nil)

	_, err := client.ListFiles(context.Background(), "dir")
	require.NoError(t, err)

	reqs := host.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "application/vnd.github.v3+json", reqs[0].Header.Get("Accept"))
	assert.Equal(t, "tmplsync/test", reqs[0].Header.Get("User-Agent"))
	assert.Equal(t, "main", reqs[0].URL.Query().Get("ref"))
}

func TestListFiles_Empty(t *testing.T) {
	host := testutil.NewFakeHost(t, nil)
	host.AddDir("empty")
	client := newTestClient(host, nil)

	files, err := client.ListFiles(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListFiles_DirectoryNotFound(t *testing.T) {
	host := testutil.NewFakeHost(t, nil)
	client := newTestClient(host, nil)

	_, err := client.ListFiles(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDirectoryNotFound))
	assert.Equal(t, "Directory not found: nope", err.Error())
}

func TestListFiles_NestedFailureAborts(t *testing.T) {
	host := testutil.NewFakeHost(t, map[string]string{
		"tpl/a.md":       "a",
		"tpl/sub/b.md":   "b",
		"tpl/sub/deep/c": "c",
	})
	host.FailPath("tpl/sub/deep", http.StatusForbidden, nil)
	client := newTestClient(host, nil)

	files, err := client.ListFiles(context.Background(), "tpl")
	require.Error(t, err)
	assert.Nil(t, files)
	assert.True(t, syncerr.Is(err, syncerr.KindRateLimited))
}

func TestListFiles_MaxDepth(t *testing.T) {
	host := testutil.NewFakeHost(t, map[string]string{"r/a/b/c/file.md": "x"})

	client := newTestClient(host, func(o *Options) { o.MaxDepth = 2 })
	_, err := client.ListFiles(context.Background(), "r")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDepthExceeded))
	assert.Contains(t, err.Error(), "r/a/b/c")

	client = newTestClient(host, func(o *Options) { o.MaxDepth = 3 })
	files, err := client.ListFiles(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"r/a/b/c/file.md"}, files)
}

func TestListFiles_FileIsNotADirectory(t *testing.T) {
	host := testutil.NewFakeHost(t, map[string]string{"CLAUDE.md": "x"})
	client := newTestClient(host, nil)

	_, err := client.ListFiles(context.Background(), "CLAUDE.md")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))
}

// listingServer answers every contents API request from a fixed map of
// directory -> entries
func listingServer(t *testing.T, listings map[string][]Entry) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api"), "/")
		entries, ok := listings[dir]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(entries)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListFiles_SkipsUnsupportedEntries(t *testing.T) {
	srv := listingServer(t, map[string][]Entry{
		"tpl": {
			{Name: "a.md", Path: "tpl/a.md", Type: TypeFile},
			{Name: "link", Path: "tpl/link", Type: TypeSymlink},
			{Name: "mod", Path: "tpl/mod", Type: TypeSubmodule},
		},
	})
	client := NewHTTPClient(Options{APIBaseURL: srv.URL + "/api"})

	files, err := client.ListFiles(context.Background(), "tpl")
	require.NoError(t, err)
	assert.Equal(t, []string{"tpl/a.md"}, files)
}

func TestListFiles_CycleGuard(t *testing.T) {
	srv := listingServer(t, map[string][]Entry{
		"loop": {
			{Name: "a.md", Path: "loop/a.md", Type: TypeFile},
			{Name: "sub", Path: "loop/sub", Type: TypeDir},
		},
		"loop/sub": {
			{Name: "b.md", Path: "loop/sub/b.md", Type: TypeFile},
			{Name: "back", Path: "loop", Type: TypeDir},
		},
	})
	client := NewHTTPClient(Options{APIBaseURL: srv.URL + "/api"})

	files, err := client.ListFiles(context.Background(), "loop")
	require.NoError(t, err)
	assert.Equal(t, []string{"loop/a.md", "loop/sub/b.md"}, files)
}

func TestListFiles_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name": 1`))
	}))
	t.Cleanup(srv.Close)
	client := NewHTTPClient(Options{APIBaseURL: srv.URL})

	_, err := client.ListFiles(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))
}

func TestDecodeListing(t *testing.T) {
	entries, err := decodeListing("d", []byte(`  [{"name":"a","path":"d/a","type":"file","download_url":null}]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].DownloadURL)

	_, err = decodeListing("d", []byte(`{"name":"a"}`))
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))

	_, err = decodeListing("d", nil)
	assert.True(t, syncerr.Is(err, syncerr.KindDecode))
}
