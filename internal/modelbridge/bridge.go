package modelbridge

import (
	"fmt"
	"strings"

	"github.com/sleepstars/deepbridge/internal/config"
)

// Resolver translates a public model id into the id the upstream expects
type Resolver interface {
	Resolve(model string) (string, error)
	// Policy returns the configuration name of the policy
	Policy() string
}

// ModelNotFoundError is returned by a mapping resolver for ids outside its table
type ModelNotFoundError struct {
	Model     string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("Model '%s' not found. Available models: %s", e.Model, strings.Join(e.Available, ", "))
}

// PassThrough forwards every model id unchanged
type PassThrough struct{}

func (PassThrough) Resolve(model string) (string, error) {
	return model, nil
}

func (PassThrough) Policy() string {
	return config.PolicyPassthrough
}

// MappingTable resolves ids through a fixed table and rejects everything else.
// It is immutable after construction and safe for concurrent use.
type MappingTable struct {
	keys  []string
	table map[string]string
}

// NewMappingTable builds a table that keeps the declaration order of its keys
func NewMappingTable(pairs []config.ModelMapping) *MappingTable {
	t := &MappingTable{
		keys:  make([]string, 0, len(pairs)),
		table: make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		if _, dup := t.table[p.Model]; !dup {
			t.keys = append(t.keys, p.Model)
		}
		t.table[p.Model] = p.Upstream
	}
	return t
}

func (t *MappingTable) Resolve(model string) (string, error) {
	if upstream, ok := t.table[model]; ok {
		return upstream, nil
	}
	return "", &ModelNotFoundError{Model: model, Available: t.Models()}
}

func (t *MappingTable) Policy() string {
	return config.PolicyMapping
}

// Models returns the public ids in declaration order
func (t *MappingTable) Models() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// NewResolver picks the resolver named by cfg.Policy
func NewResolver(cfg config.ModelsConfig) (Resolver, error) {
	switch cfg.Policy {
	case config.PolicyPassthrough, "":
		return PassThrough{}, nil
	case config.PolicyMapping:
		if len(cfg.Mapping) == 0 {
			return nil, fmt.Errorf("mapping policy needs at least one model mapping")
		}
		return NewMappingTable(cfg.Mapping), nil
	default:
		return nil, fmt.Errorf("unknown model policy %q", cfg.Policy)
	}
}
