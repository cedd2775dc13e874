package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osce-simulator/pkg"
)

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(Deps{Cases: builtinCases(t), Connector: &fakeConnector{client: &fakeLLM{}}})

	m := r.Create()
	require.NotEmpty(t, m.ID())
	assert.Equal(t, pkg.PhaseKeyEntry, m.Phase())
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(m.ID())
	require.NoError(t, err)
	assert.Same(t, m, got)

	assert.True(t, r.Delete(m.ID()))
	assert.False(t, r.Delete(m.ID()))
	_, err = r.Get(m.ID())
	assert.True(t, errors.Is(err, ErrUnknownSession))
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	r := NewRegistry(Deps{Cases: builtinCases(t), Connector: &fakeConnector{client: &fakeLLM{}}})
	ctx := context.Background()

	a, b := r.Create(), r.Create()
	require.NotEqual(t, a.ID(), b.ID())
	for _, m := range []*Machine{a, b} {
		require.NoError(t, m.SubmitCredential(ctx, "sk"))
		_, err := m.SelectCase(ctx, "mr-smith-leg-ulcer")
		require.NoError(t, err)
	}

	_, err := a.PerformAction("Order ABI")
	require.NoError(t, err)
	_, err = a.Ask(ctx, "Any pain?")
	require.NoError(t, err)

	assert.Len(t, a.Snapshot().Results, 1)
	assert.Empty(t, b.Snapshot().Results)
	assert.Len(t, b.Snapshot().Turns, 2)
}
