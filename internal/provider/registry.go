// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jeranaias/assistant-core/internal/config"
)

// ErrUnknownProvider is returned when a named provider is not registered.
// Absence of a named provider at call time is a hard error.
var ErrUnknownProvider = errors.New("unknown provider")

// Descriptor describes one configured backend. Loaded at startup and
// read-only thereafter.
type Descriptor struct {
	// Name identifies the provider ("openai", "anthropic", ...).
	Name string
	// Tags are capability tags ("chat", "fast", "cheap").
	Tags []string
	// Priority orders providers; lower is preferred.
	Priority int
	// CostPerToken is the per-token cost coefficient in dollars.
	CostPerToken float64
	// MaxTokens is the largest completion the provider accepts.
	MaxTokens int
	// BaseURL is the API endpoint.
	BaseURL string
	// APIKey authenticates requests.
	APIKey string
	// DefaultModel is used when a call names no model.
	DefaultModel string
}

// EstimateCost returns the dollar cost for the given token count.
func (d Descriptor) EstimateCost(tokens int) float64 {
	return float64(tokens) * d.CostPerToken
}

// HasTag reports whether the descriptor carries the given capability tag.
func (d Descriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Registry holds the configured provider descriptors.
type Registry struct {
	byName map[string]Descriptor
	order  []string // names sorted by priority
}

// NewRegistry builds a registry from configuration.
func NewRegistry(cfgs []config.ProviderConfig) *Registry {
	r := &Registry{byName: make(map[string]Descriptor, len(cfgs))}
	for _, c := range cfgs {
		r.byName[c.Name] = Descriptor{
			Name:         c.Name,
			Tags:         c.Tags,
			Priority:     c.Priority,
			CostPerToken: c.CostPerToken,
			MaxTokens:    c.MaxTokens,
			BaseURL:      c.BaseURL,
			APIKey:       c.APIKey,
			DefaultModel: c.DefaultModel,
		}
		r.order = append(r.order, c.Name)
	}
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.byName[r.order[i]].Priority < r.byName[r.order[j]].Priority
	})
	return r
}

// Get returns the descriptor for the named provider.
func (r *Registry) Get(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return d, nil
}

// List returns all descriptors in priority order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.byName)
}

// CachedResponse is one cached backend response.
// Entries are immutable once written; a refresh overwrites wholesale.
type CachedResponse struct {
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokens_used"`
	Source     string    `json:"source"`
	StoredAt   time.Time `json:"stored_at"`
}

// CacheStats holds cache hit/miss counters for status reporting.
type CacheStats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}
