package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/schaermu/tmplsync/internal/syncerr"
)

// Entry types reported by the contents API
const (
	TypeFile      = "file"
	TypeDir       = "dir"
	TypeSymlink   = "symlink"
	TypeSubmodule = "submodule"
)

// Entry is one child of a remote directory as returned by the contents API
type Entry struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"` // rooted at the repository root
	Type        string  `json:"type"`
	DownloadURL *string `json:"download_url"`
}

// frame is one directory on the walk stack
type frame struct {
	dir     string
	entries []Entry
	next    int
	depth   int
}

// ListFiles walks the remote tree below remoteDir and returns every file path
// in depth-first pre-order of the upstream listing. Any failure aborts the
// whole walk.
func (c *HTTPClient) ListFiles(ctx context.Context, remoteDir string) ([]string, error) {
	remoteDir = strings.Trim(remoteDir, "/")

	root, err := c.ListDir(ctx, remoteDir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(root))
	visited := map[string]bool{remoteDir: true}
	stack := []*frame{{dir: remoteDir, entries: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := top.entries[top.next]
		top.next++

		switch entry.Type {
		case TypeFile:
			files = append(files, entry.Path)
		case TypeDir:
			if visited[entry.Path] {
				c.logger.Warn("directory listed twice, skipping", "path", entry.Path, "parent", top.dir)
				continue
			}
			depth := top.depth + 1
			if c.maxDepth > 0 && depth > c.maxDepth {
				return nil, &syncerr.Error{
					Kind:   syncerr.KindDepthExceeded,
					Path:   entry.Path,
					Detail: fmt.Sprintf("%d", c.maxDepth),
				}
			}
			visited[entry.Path] = true

			children, err := c.ListDir(ctx, entry.Path)
			if err != nil {
				return nil, err
			}
			stack = append(stack, &frame{dir: entry.Path, entries: children, depth: depth})
		default:
			c.logger.Debug("skipping unsupported entry", "path", entry.Path, "type", entry.Type)
		}
	}

	c.logger.Debug("listed remote directory", "dir", remoteDir, "files", len(files))
	return files, nil
}

// ListDir returns the direct children of a single remote directory
func (c *HTTPClient) ListDir(ctx context.Context, remoteDir string) ([]Entry, error) {
	u := c.apiBase + "/" + escapePath(remoteDir)
	if c.ref != "" {
		u += "?ref=" + url.QueryEscape(c.ref)
	}
	c.logger.Debug("listing directory", "url", u)

	header := http.Header{}
	header.Set("Accept", "application/vnd.github.v3+json")

	body, err := c.get(ctx, u, remoteDir, syncerr.KindDirectoryNotFound, header)
	if err != nil {
		return nil, err
	}

	return decodeListing(remoteDir, body)
}

// decodeListing parses a contents API directory payload. A JSON object means
// the path named a file rather than a directory.
func decodeListing(remoteDir string, body []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &syncerr.Error{Kind: syncerr.KindDecode, Path: remoteDir, Detail: "payload is not a directory listing"}
	}

	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, &syncerr.Error{Kind: syncerr.KindDecode, Path: remoteDir, Err: err}
	}
	return entries, nil
}
