package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/tmplsync/internal/pathmap"
)

// DirectoryFailurePolicy defines what happens when one file inside a directory
// target fails
type DirectoryFailurePolicy string

const (
	// FailureIsolate attempts every file and fails the target afterwards
	FailureIsolate DirectoryFailurePolicy = "isolate"
	// FailureAbort stops the directory target at the first failed file
	FailureAbort DirectoryFailurePolicy = "abort"
)

const (
	DefaultOwner        = "K-shir0"
	DefaultRepo         = "docs-boilerplate-llm"
	DefaultRef          = "main"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20
	DefaultMaxDepth     = 32
)

// Config represents the complete tmplsync configuration
type Config struct {
	Source  SourceConfig `yaml:"source"`
	HTTP    HTTPConfig   `yaml:"http"`
	Sync    SyncConfig   `yaml:"sync"`
	Paths   PathsConfig  `yaml:"paths"`
	Targets []Target     `yaml:"targets"`
}

// SourceConfig configures the GitHub repository files are pulled from
type SourceConfig struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Ref        string `yaml:"ref"`
	RawBaseURL string `yaml:"raw_base_url"`
	APIBaseURL string `yaml:"api_base_url"`
}

// HTTPConfig configures requests against the content endpoints
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Compression  *bool         `yaml:"compression"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	DirectoryFailure DirectoryFailurePolicy `yaml:"directory_failure"`
	MaxDepth         int                    `yaml:"max_depth"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	ProjectRoot string `yaml:"project_root"`
}

// Target is one remote file or directory mirrored to a local path
type Target struct {
	Remote  string   `yaml:"remote"`
	Local   string   `yaml:"local"`
	Dir     bool     `yaml:"dir"`
	Exclude []string `yaml:"exclude"`
}

// Default returns the built-in configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultTargets returns the built-in sync list
func DefaultTargets() []Target {
	return []Target{
		{Remote: "CLAUDE.md", Local: "CLAUDE.md"},
		{Remote: "docs/design.md.sample", Local: "docs/design.md.sample"},
		{Remote: ".claude/skills", Local: ".claude/skills", Dir: true},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in source and path fields
func (c *Config) expandEnv() error {
	c.Source.Owner = os.ExpandEnv(c.Source.Owner)
	c.Source.Repo = os.ExpandEnv(c.Source.Repo)
	c.Source.Ref = os.ExpandEnv(c.Source.Ref)
	c.Source.RawBaseURL = os.ExpandEnv(c.Source.RawBaseURL)
	c.Source.APIBaseURL = os.ExpandEnv(c.Source.APIBaseURL)

	root, err := homedir.Expand(os.ExpandEnv(c.Paths.ProjectRoot))
	if err != nil {
		return fmt.Errorf("failed to expand paths.project_root: %w", err)
	}
	c.Paths.ProjectRoot = root
	return nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Source.Owner == "" && c.Source.Repo == "" {
		c.Source.Owner = DefaultOwner
		c.Source.Repo = DefaultRepo
	}
	if c.Source.Ref == "" {
		c.Source.Ref = DefaultRef
	}
	if c.Source.RawBaseURL == "" {
		c.Source.RawBaseURL = fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", c.Source.Owner, c.Source.Repo, c.Source.Ref)
	}
	if c.Source.APIBaseURL == "" {
		c.Source.APIBaseURL = fmt.Sprintf("https://api.github.com/repos/%s/%s/contents", c.Source.Owner, c.Source.Repo)
	}
	c.Source.RawBaseURL = strings.TrimSuffix(c.Source.RawBaseURL, "/")
	c.Source.APIBaseURL = strings.TrimSuffix(c.Source.APIBaseURL, "/")

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultTimeout
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.HTTP.Compression == nil {
		enabled := true
		c.HTTP.Compression = &enabled
	}

	if c.Sync.DirectoryFailure == "" {
		c.Sync.DirectoryFailure = FailureIsolate
	}
	if c.Sync.MaxDepth == 0 {
		c.Sync.MaxDepth = DefaultMaxDepth
	}

	// an omitted list keeps the built-in targets, an explicit empty list is rejected
	if c.Targets == nil {
		c.Targets = DefaultTargets()
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Source.Owner == "" || c.Source.Repo == "" {
		return fmt.Errorf("source.owner and source.repo are required")
	}
	if c.Source.Ref == "" {
		return fmt.Errorf("source.ref is required")
	}
	if !isHTTPURL(c.Source.RawBaseURL) {
		return fmt.Errorf("source.raw_base_url must be an http(s) URL: %s", c.Source.RawBaseURL)
	}
	if !isHTTPURL(c.Source.APIBaseURL) {
		return fmt.Errorf("source.api_base_url must be an http(s) URL: %s", c.Source.APIBaseURL)
	}

	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be positive: %s", c.HTTP.Timeout)
	}
	// negative disables the limit
	if c.HTTP.MaxBodyBytes < -1 {
		return fmt.Errorf("http.max_body_bytes must be -1 (unlimited) or positive: %d", c.HTTP.MaxBodyBytes)
	}

	switch c.Sync.DirectoryFailure {
	case FailureIsolate, FailureAbort:
		// valid
	default:
		return fmt.Errorf("invalid sync.directory_failure policy: %s (must be isolate or abort)", c.Sync.DirectoryFailure)
	}
	if c.Sync.MaxDepth < -1 {
		return fmt.Errorf("sync.max_depth must be -1 (unlimited) or positive: %d", c.Sync.MaxDepth)
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if seen[t.Local] {
			return fmt.Errorf("targets[%d]: duplicate local path %s", i, t.Local)
		}
		seen[t.Local] = true
	}

	return nil
}

// Validate checks a single target
func (t Target) Validate() error {
	if !pathmap.IsClean(t.Remote) {
		return fmt.Errorf("remote must be a relative slash-separated path: %q", t.Remote)
	}
	if !pathmap.IsClean(t.Local) {
		return fmt.Errorf("local must be a relative slash-separated path: %q", t.Local)
	}
	if len(t.Exclude) > 0 && !t.Dir {
		return fmt.Errorf("exclude is only supported for directory targets: %s", t.Remote)
	}
	for _, p := range t.Exclude {
		if !pathmap.ValidPattern(p) {
			return fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}
	return nil
}

// Kind returns "dir" or "file"
func (t Target) Kind() string {
	if t.Dir {
		return "dir"
	}
	return "file"
}

// CompressionEnabled reports whether compressed responses are requested
func (c *Config) CompressionEnabled() bool {
	return c.HTTP.Compression == nil || *c.HTTP.Compression
}

// RepoSlug returns owner/repo@ref for log output
func (c *Config) RepoSlug() string {
	return fmt.Sprintf("%s/%s@%s", c.Source.Owner, c.Source.Repo, c.Source.Ref)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
