package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(10 * time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "deck", []byte("x")))
	v, ok, err := m.Get(ctx, "deck")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), v)

	now = now.Add(9 * time.Minute)
	_, ok, _ = m.Get(ctx, "deck")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "deck")
	assert.False(t, ok)
}

func TestMemoryMiss(t *testing.T) {
	_, ok, err := NewMemory(time.Minute).Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	_, ok := GetJSON[[]sample](ctx, m, "Active::Bot")
	assert.False(t, ok)

	SetJSON(ctx, m, "Active::Bot", []sample{{Front: "q", Back: "a"}})
	got, ok := GetJSON[[]sample](ctx, m, "Active::Bot")
	require.True(t, ok)
	assert.Equal(t, []sample{{Front: "q", Back: "a"}}, got)

	require.NoError(t, m.Set(ctx, "broken", []byte("{")))
	_, ok = GetJSON[[]sample](ctx, m, "broken")
	assert.False(t, ok)
}
