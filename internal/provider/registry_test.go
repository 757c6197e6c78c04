// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/assistant-core/internal/config"
)

func testProviders() []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "backup", Priority: 2, CostPerToken: 0.000002, Tags: []string{"chat"}},
		{Name: "primary", Priority: 1, CostPerToken: 0.000001, Tags: []string{"chat", "fast"}},
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(testProviders())

	d, err := r.Get("primary")
	require.NoError(t, err)
	assert.Equal(t, "primary", d.Name)
	assert.True(t, d.HasTag("fast"))
	assert.False(t, d.HasTag("cheap"))
}

// TestRegistryGetUnknown verifies that absence of a named provider is a
// hard error.
func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(testProviders())

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistryListPriorityOrder(t *testing.T) {
	r := NewRegistry(testProviders())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "primary", list[0].Name)
	assert.Equal(t, "backup", list[1].Name)
}

func TestDescriptorEstimateCost(t *testing.T) {
	d := Descriptor{CostPerToken: 0.000002}
	assert.InDelta(t, 0.002, d.EstimateCost(1000), 1e-9)
}
