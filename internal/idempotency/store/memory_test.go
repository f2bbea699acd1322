package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notary/internal/idempotency"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewInMemory()
	s.now = func() time.Time { return now }

	_, reserved, err := s.Reserve(ctx, "k", "d1", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)

	existing, reserved, err := s.Reserve(ctx, "k", "d1", time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.True(t, existing.Pending)

	require.NoError(t, s.Complete(ctx, "k", idempotency.Record{Digest: "d1", Status: 201, Body: []byte(`{"document_id":1}`)}, time.Minute))
	existing, _, err = s.Reserve(ctx, "k", "d1", time.Minute)
	require.NoError(t, err)
	assert.False(t, existing.Pending)
	assert.Equal(t, 201, existing.Status)
	assert.JSONEq(t, `{"document_id":1}`, string(existing.Body))

	now = now.Add(2 * time.Minute)
	_, reserved, err = s.Reserve(ctx, "k", "d2", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved, "expired records free the key")

	require.NoError(t, s.Release(ctx, "k"))
	_, reserved, err = s.Reserve(ctx, "k", "d3", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}
