package etl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source extracts rows from an external system: a spreadsheet, a database,
// a survey API. Implementations live in etl/sources/, one file per type.
//
// Pattern: Airbyte connector protocol (spec → discover → read).

// SourceConfig is an opaque configuration map parsed per source type.
type SourceConfig map[string]any

// String returns the config value for key, or "" when unset.
func (c SourceConfig) String(key string) string {
	if v, ok := c[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// ConfigField describes a single configuration input for a source.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// SourceSpec describes a source type and the config keys it reads.
type SourceSpec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// Prepare returns a copy of cfg with field defaults filled in for unset
// keys. A required key that is unset or blank is an error.
func (s SourceSpec) Prepare(cfg SourceConfig) (SourceConfig, error) {
	out := make(SourceConfig, len(cfg)+len(s.ConfigFields))
	for k, v := range cfg {
		out[k] = v
	}
	for _, f := range s.ConfigFields {
		if strings.TrimSpace(out.String(f.Key)) != "" {
			continue
		}
		if f.Required {
			return nil, fmt.Errorf("%s: %s is required", s.Type, f.Key)
		}
		if f.Default != "" {
			out[f.Key] = f.Default
		}
	}
	return out, nil
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Discover introspects the source and returns the expected schema.
	Discover(ctx context.Context, cfg SourceConfig) (*Schema, error)

	// Read streams records from the source into a channel.
	// The channel is closed when all records have been read or ctx is cancelled.
	// Errors are sent on the error channel (buffered size 1).
	Read(ctx context.Context, cfg SourceConfig) (<-chan Record, <-chan error)
}

// ── Source Registry ────────────────────────────────────────
// Registration happens in init() of each source file; importing
// etl/sources for side effects makes them all available.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// resolve looks up a source and prepares cfg against its spec.
func resolve(typ string, cfg SourceConfig) (Source, SourceConfig, error) {
	src, err := GetSource(typ)
	if err != nil {
		return nil, nil, err
	}
	cfg, err = src.Spec().Prepare(cfg)
	if err != nil {
		return nil, nil, err
	}
	return src, cfg, nil
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
