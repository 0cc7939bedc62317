package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

func TestNewClientExplicitProvider(t *testing.T) {
	isolateRegistry(t)
	factory := &fakeFactory{name: "alpha"}
	MustRegister(factory)

	client, err := NewClient(WithProvider("alpha"), WithModel("m1"))
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), &core.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", resp.Provider)

	require.Len(t, factory.created, 1)
	cfg := factory.created[0]
	assert.Equal(t, "m1", cfg.Model)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, float32(0.7), cfg.Temperature)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.NotNil(t, cfg.Logger)
}

func TestNewClientAutoDetect(t *testing.T) {
	isolateRegistry(t)
	MustRegister(&fakeFactory{name: "low", priority: 1, available: true})
	MustRegister(&fakeFactory{name: "best", priority: 90, available: true})

	client, err := NewClient()
	require.NoError(t, err)
	resp, err := client.Chat(context.Background(), &core.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "best", resp.Provider)
}

func TestNewClientErrors(t *testing.T) {
	isolateRegistry(t)

	_, err := NewClient()
	assert.ErrorIs(t, err, core.ErrProviderNotFound)

	_, err = NewClient(WithProvider("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProviderNotFound)

	var fe *core.FrameworkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "missing", fe.ID)

	assert.Panics(t, func() { MustNewClient(WithProvider("missing")) })
}
