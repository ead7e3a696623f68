package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Project  ProjectConfig  `mapstructure:"project"`
	Stores   []StoreConfig  `mapstructure:"stores"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Server   ServerConfig   `mapstructure:"server"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// ProjectConfig locates the analyzed repository and its graph data.
// Relative paths are resolved against Root.
type ProjectConfig struct {
	Root       string `mapstructure:"root"`
	GraphRoot  string `mapstructure:"graph_root"`
	HashCache  string `mapstructure:"hash_cache"`
	RouterFile string `mapstructure:"router_file"`

	// Namespaces is the allow-list of top-level import segments treated as internal.
	Namespaces []string `mapstructure:"namespaces"`
	// SourceRoots are stripped from file paths before deriving module ids (e.g. "src").
	SourceRoots []string `mapstructure:"source_roots"`
	// Ignore holds gitignore-style patterns applied on top of the repository's own rules.
	Ignore []string `mapstructure:"ignore"`

	FallbackGraph     string `mapstructure:"fallback_graph"`
	DescriptionMaxLen int    `mapstructure:"description_max_len"`
}

// StoreConfig declares one Graph Store and which files feed it.
type StoreConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
	File string `mapstructure:"file"`
	// Include is a list of path prefixes; a file belongs to the store if any prefix matches.
	// An empty list matches every file.
	Include []string `mapstructure:"include"`
}

// Matches reports whether relPath feeds this store.
func (s StoreConfig) Matches(relPath string) bool {
	if len(s.Include) == 0 {
		return true
	}
	relPath = filepath.ToSlash(relPath)
	for _, prefix := range s.Include {
		prefix = strings.TrimSuffix(filepath.ToSlash(prefix), "/")
		if prefix == "" || prefix == "." || relPath == prefix || strings.HasPrefix(relPath, prefix+"/") {
			return true
		}
	}
	return false
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	Dimensions int    `mapstructure:"dimensions"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// AuditPath is the JSON-lines audit journal. Empty disables it.
	AuditPath string `mapstructure:"audit_path"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type WatchConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"`
}

// SecretsConfig selects where backend credentials left out of this file are read from.
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	File     string `mapstructure:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Root:              ".",
			GraphRoot:         ".codegraph",
			HashCache:         ".codegraph/hashes.json",
			RouterFile:        ".codegraph/router.json",
			FallbackGraph:     "project_overview",
			DescriptionMaxLen: 120,
		},
		Stores: []StoreConfig{
			{ID: "project_overview", Name: "Project Overview", Type: "domain", File: "project_overview.json"},
		},
		Vector:   VectorConfig{Host: "localhost", Port: 6334, Collection: "codegraph_nodes", Dimensions: 256},
		Temporal: TemporalConfig{Host: "localhost:7233", Namespace: "default", TaskQueue: "codegraph"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Tracing:  TracingConfig{SampleRate: 1.0},
		Server:   ServerConfig{Addr: ":8080"},
		Watch:    WatchConfig{DebounceMs: 500},
		Secrets:  SecretsConfig{Provider: "env"},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if len(c.Project.Namespaces) == 0 {
		warnings = append(warnings, "project.namespaces is empty: every absolute import will be treated as external")
	}

	seen := make(map[string]bool)
	files := make(map[string]bool)
	for i, s := range c.Stores {
		if s.ID == "" {
			warnings = append(warnings, fmt.Sprintf("stores[%d] has no id", i))
			continue
		}
		if seen[s.ID] {
			warnings = append(warnings, fmt.Sprintf("store id '%s' is declared more than once", s.ID))
		}
		seen[s.ID] = true
		if s.File == "" {
			warnings = append(warnings, fmt.Sprintf("store '%s' has no file", s.ID))
		} else if files[s.File] {
			warnings = append(warnings, fmt.Sprintf("store file '%s' is shared by more than one store", s.File))
		}
		files[s.File] = true
	}

	if c.Project.DescriptionMaxLen < 0 {
		warnings = append(warnings, fmt.Sprintf("project.description_max_len %d is negative", c.Project.DescriptionMaxLen))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing.sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	if c.Watch.DebounceMs < 0 {
		warnings = append(warnings, fmt.Sprintf("watch.debounce_ms %d is negative", c.Watch.DebounceMs))
	}

	return warnings
}

// Store returns the store config with the given id.
func (c *Config) Store(id string) (StoreConfig, bool) {
	for _, s := range c.Stores {
		if s.ID == id {
			return s, true
		}
	}
	return StoreConfig{}, false
}

// StoresFor returns the stores fed by relPath, in declaration order.
func (c *Config) StoresFor(relPath string) []StoreConfig {
	var out []StoreConfig
	for _, s := range c.Stores {
		if s.Matches(relPath) {
			out = append(out, s)
		}
	}
	return out
}

// RootDir returns the absolute project root.
func (c *Config) RootDir() string {
	root := c.Project.Root
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// resolve anchors p at the project root unless it is already absolute.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir(), p)
}

// GraphDir returns the absolute directory holding Graph Store files.
func (c *Config) GraphDir() string { return c.resolve(c.Project.GraphRoot) }

// HashCachePath returns the absolute hash cache file path.
func (c *Config) HashCachePath() string { return c.resolve(c.Project.HashCache) }

// RouterPath returns the absolute router file path.
func (c *Config) RouterPath() string { return c.resolve(c.Project.RouterFile) }

// StorePath returns the absolute file path of a store.
func (c *Config) StorePath(s StoreConfig) string {
	if filepath.IsAbs(s.File) {
		return s.File
	}
	return filepath.Join(c.GraphDir(), s.File)
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("CODEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if len(cfg.Stores) == 0 {
		cfg.Stores = Default().Stores
	}

	// Relative project roots are anchored at the config file's directory.
	if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(filepath.Dir(path), cfg.Project.Root)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("project.root", d.Project.Root)
	v.SetDefault("project.graph_root", d.Project.GraphRoot)
	v.SetDefault("project.hash_cache", d.Project.HashCache)
	v.SetDefault("project.router_file", d.Project.RouterFile)
	v.SetDefault("project.fallback_graph", d.Project.FallbackGraph)
	v.SetDefault("project.description_max_len", d.Project.DescriptionMaxLen)
	v.SetDefault("vector.host", d.Vector.Host)
	v.SetDefault("vector.port", d.Vector.Port)
	v.SetDefault("vector.collection", d.Vector.Collection)
	v.SetDefault("vector.dimensions", d.Vector.Dimensions)
	v.SetDefault("temporal.host", d.Temporal.Host)
	v.SetDefault("temporal.namespace", d.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", d.Temporal.TaskQueue)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.audit_path", d.Log.AuditPath)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMs)
	v.SetDefault("secrets.provider", d.Secrets.Provider)
}
