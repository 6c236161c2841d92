package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&ModelSpec{Name: "Widget"}))
	require.NoError(t, r.Register(&ModelSpec{Name: "Article"}))

	model, ok := r.Get("Widget")
	require.True(t, ok)
	assert.Equal(t, "Widget", model.ModelName())

	_, ok = r.Get("Missing")
	assert.False(t, ok)

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"Article", "Widget"}, r.List())
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&ModelSpec{Name: "Widget"}))

	err := r.Register(&ModelSpec{Name: "Widget"})
	require.Error(t, err)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Readiness(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Ready())

	r.SetReady()
	assert.True(t, r.Ready())

	r.Clear()
	assert.False(t, r.Ready())
	assert.Equal(t, 0, r.Count())
}
