package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// FakeHost serves an in-memory repository the way GitHub does: raw file
// content below /raw/ and the contents API below /api/.
type FakeHost struct {
	Server *httptest.Server

	// Encoding, when set to "gzip" or "zstd", compresses responses for clients
	// that accept it
	Encoding string

	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	statuses map[string]int
	delays   map[string]time.Duration
	headers  map[string]http.Header
	requests []*http.Request
}

// NewFakeHost starts a fake host holding files (repository path -> content).
// The server is closed when the test ends.
func NewFakeHost(t testing.TB, files map[string]string) *FakeHost {
	t.Helper()

	h := &FakeHost{
		files:    make(map[string][]byte),
		dirs:     make(map[string]bool),
		statuses: make(map[string]int),
		delays:   make(map[string]time.Duration),
		headers:  make(map[string]http.Header),
	}
	for p, content := range files {
		h.SetFile(p, content)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/raw/", h.handleRaw)
	mux.HandleFunc("/api/", h.handleAPI)
	mux.HandleFunc("/api", h.handleAPI)
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Server.Close)

	return h
}

// RawBaseURL is the base for raw content requests
func (h *FakeHost) RawBaseURL() string {
	return h.Server.URL + "/raw"
}

// APIBaseURL is the base for contents API requests
func (h *FakeHost) APIBaseURL() string {
	return h.Server.URL + "/api"
}

// SetFile adds or replaces a file
func (h *FakeHost) SetFile(path, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[strings.Trim(path, "/")] = []byte(content)
}

// AddDir registers a directory, which may stay empty
func (h *FakeHost) AddDir(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirs[strings.Trim(path, "/")] = true
}

// FailPath makes every request for path answer with status
func (h *FakeHost) FailPath(path string, status int, header http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path = strings.Trim(path, "/")
	h.statuses[path] = status
	if header != nil {
		h.headers[path] = header
	}
}

// Delay holds responses for path until d has passed or the request is canceled
func (h *FakeHost) Delay(path string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delays[strings.Trim(path, "/")] = d
}

// Requests returns the requests received so far
func (h *FakeHost) Requests() []*http.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*http.Request(nil), h.requests...)
}

// RequestPaths returns "<kind> <path>" for every request, kind being raw or api
func (h *FakeHost) RequestPaths() []string {
	var out []string
	for _, r := range h.Requests() {
		switch {
		case strings.HasPrefix(r.URL.Path, "/raw/"):
			out = append(out, "raw "+strings.TrimPrefix(r.URL.Path, "/raw/"))
		default:
			out = append(out, "api "+strings.Trim(strings.TrimPrefix(r.URL.Path, "/api"), "/"))
		}
	}
	return out
}

// intercept records the request and applies configured delays and failures.
// It returns true when the response has already been written.
func (h *FakeHost) intercept(w http.ResponseWriter, r *http.Request, path string) bool {
	h.mu.Lock()
	h.requests = append(h.requests, r.Clone(r.Context()))
	delay := h.delays[path]
	status := h.statuses[path]
	header := h.headers[path]
	h.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return true
		}
	}

	if status != 0 {
		for k, v := range header {
			w.Header()[k] = v
		}
		http.Error(w, http.StatusText(status), status)
		return true
	}
	return false
}

func (h *FakeHost) handleRaw(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/raw/"), "/")
	if h.intercept(w, r, path) {
		return
	}

	h.mu.Lock()
	content, ok := h.files[path]
	h.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	h.write(w, r, "text/plain; charset=utf-8", content)
}

type apiEntry struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Type        string  `json:"type"`
	DownloadURL *string `json:"download_url"`
}

func (h *FakeHost) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api"), "/")
	if h.intercept(w, r, path) {
		return
	}

	h.mu.Lock()
	_, isFile := h.files[path]
	entries, isDir := h.children(path)
	h.mu.Unlock()

	var payload any
	switch {
	case isFile:
		payload = h.entry(path, "file")
	case isDir:
		payload = entries
	default:
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.write(w, r, "application/json; charset=utf-8", body)
}

// children lists the direct children of dir, sorted by name like GitHub does.
// Callers must hold h.mu.
func (h *FakeHost) children(dir string) ([]apiEntry, bool) {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	exists := dir == "" || h.dirs[dir]
	seen := make(map[string]bool)
	var entries []apiEntry

	add := func(rest string) {
		exists = true
		name, _, nested := strings.Cut(rest, "/")
		if seen[name] {
			return
		}
		seen[name] = true
		if nested {
			entries = append(entries, h.entry(prefix+name, "dir"))
		} else {
			entries = append(entries, h.entry(prefix+name, "file"))
		}
	}

	for p := range h.files {
		if rest, ok := strings.CutPrefix(p, prefix); ok && rest != "" {
			add(rest)
		}
	}
	for d := range h.dirs {
		if rest, ok := strings.CutPrefix(d, prefix); ok && rest != "" {
			add(rest + "/")
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if entries == nil {
		entries = []apiEntry{}
	}
	return entries, exists
}

func (h *FakeHost) entry(path, typ string) apiEntry {
	name := path[strings.LastIndex(path, "/")+1:]
	e := apiEntry{Name: name, Path: path, Type: typ}
	if typ == "file" {
		u := h.RawBaseURL() + "/" + path
		e.DownloadURL = &u
	}
	return e
}

// write sends body, compressed when Encoding is set and accepted
func (h *FakeHost) write(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)

	if h.Encoding == "" || !strings.Contains(r.Header.Get("Accept-Encoding"), h.Encoding) {
		_, _ = w.Write(body)
		return
	}

	var buf bytes.Buffer
	switch h.Encoding {
	case "gzip":
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write(body)
		_ = gz.Close()
	case "zstd":
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = enc.Write(body)
		_ = enc.Close()
	}
	w.Header().Set("Content-Encoding", h.Encoding)
	_, _ = w.Write(buf.Bytes())
}
