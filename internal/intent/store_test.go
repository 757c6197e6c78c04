// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *TrainingStore {
	t.Helper()
	s, err := OpenTrainingStore(filepath.Join(t.TempDir(), "training.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTrainingStoreAppendAndAll(t *testing.T) {
	s := openTestStore(t)

	examples := []TrainingExample{
		{Message: "jot down buy milk", Intent: "create_task", Entities: map[string]string{"title": "buy milk"}},
		{Message: "howdy", Intent: "greeting", Timestamp: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)},
	}
	for _, ex := range examples {
		require.NoError(t, s.Append(ex))
	}

	got, err := s.All()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "jot down buy milk", got[0].Message)
	assert.Equal(t, "create_task", got[0].Intent)
	assert.Equal(t, map[string]string{"title": "buy milk"}, got[0].Entities)
	assert.False(t, got[0].Timestamp.IsZero(), "zero timestamp is filled at append time")

	assert.Equal(t, "greeting", got[1].Intent)
	assert.Nil(t, got[1].Entities)
}

func TestTrainingStoreCountByIntent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Append(TrainingExample{Message: "a", Intent: "greeting"}))
	require.NoError(t, s.Append(TrainingExample{Message: "b", Intent: "greeting"}))
	require.NoError(t, s.Append(TrainingExample{Message: "c", Intent: "create_task"}))

	n, err := s.CountByIntent("greeting")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountByIntent("absent")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTrainAndRetrainRoundTrip(t *testing.T) {
	s := openTestStore(t)
	catalog := NewCatalog(BuiltinCatalog())
	m := NewMatcher(catalog, s, nil)

	require.NoError(t, m.TrainOnExamples([]TrainingExample{
		{Message: "jot down buy milk", Intent: "create_task"},
	}))

	// A fresh catalog lost the trained pattern; Retrain replays the store.
	fresh := NewCatalog(BuiltinCatalog())
	m2 := NewMatcher(fresh, s, nil)
	require.Equal(t, IntentUnknown, m2.Match("jot down buy milk").Intent)

	require.NoError(t, m2.Retrain())
	assert.Equal(t, "create_task", m2.Match("jot down buy milk").Intent)
}
