package xstreams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
)

func TestRegistry_UnknownBackend(t *testing.T) {
	_, err := NewProvider("carrier-pigeon", "p", nil, nil)
	var unknown ErrUnknownBackend
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestRegistry_Register(t *testing.T) {
	require.Error(t, RegisterBackend("", func(string, map[string]any, *xlog.Logger) (AdapterFactory, error) { return nil, nil }))
	require.Error(t, RegisterBackend("x", nil))

	var gotProvider string
	require.NoError(t, RegisterBackend("test-backend", func(provider string, cfg map[string]any, _ *xlog.Logger) (AdapterFactory, error) {
		gotProvider = provider
		return nil, nil
	}))
	_, err := NewProvider("test-backend", "orders", map[string]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "orders", gotProvider)
	assert.Contains(t, Backends(), "test-backend")
}

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = NewCodec("xml")
	require.ErrorIs(t, err, ErrCodecNotRegistered)
}
