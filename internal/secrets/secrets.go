// Package secrets resolves backend credentials kept out of the config file.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Keys for the credentials codegraph looks up.
const (
	KeyNeo4jPassword = "neo4j_password"
	KeyNeo4jUsername = "neo4j_username"
)

// DefaultEnvPrefix is prepended to upper-cased keys by EnvProvider.
const DefaultEnvPrefix = "CODEGRAPH_"

// Provider is a secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Config selects the primary backend. The environment is always the fallback.
type Config struct {
	// Provider is "env" or "file".
	Provider  string
	File      string
	EnvPrefix string
}

// Manager looks secrets up in the primary provider, then the environment,
// and caches what it finds.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager creates a manager for cfg. A nil cfg reads from the environment only.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{Provider: "env"}
	}
	env := NewEnvProvider(cfg.EnvPrefix)
	m := &Manager{fallback: env, cache: make(map[string]string)}

	switch cfg.Provider {
	case "env", "":
		m.primary = env
		m.fallback = nil
	case "file":
		fp, err := NewFileProvider(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
		m.primary = fp
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}
	return m, nil
}

// Get returns the secret for key.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	val, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return val, nil
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		if val, err := p.Get(ctx, key); err == nil && val != "" {
			m.mu.Lock()
			m.cache[key] = val
			m.mu.Unlock()
			return val, nil
		}
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

// GetOrDefault returns the secret for key, or def when it is not set anywhere.
func (m *Manager) GetOrDefault(ctx context.Context, key, def string) string {
	if val, err := m.Get(ctx, key); err == nil {
		return val
	}
	return def
}

// Resolve returns value unless it is empty, in which case key is looked up.
func (m *Manager) Resolve(ctx context.Context, value, key string) string {
	if value != "" {
		return value
	}
	return m.GetOrDefault(ctx, key, "")
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

// Get tries PREFIX_KEY, then KEY.
func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	name := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(name); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", name)
}
