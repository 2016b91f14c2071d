package registry

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

type dialerFunc func(ctx context.Context, info akeraapi.ConnectInfo) (akeraapi.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, info akeraapi.ConnectInfo) (akeraapi.Conn, error) {
	return f(ctx, info)
}

func TestRegisterAndCreate(t *testing.T) {
	r := NewRegistry()

	var seen *config.ConnectorConfig
	require.NoError(t, r.RegisterBackend(BackendInfo{Name: "fake", Description: "test backend"},
		func(cfg *config.ConnectorConfig) (akeraapi.Dialer, error) {
			seen = cfg
			return dialerFunc(func(context.Context, akeraapi.ConnectInfo) (akeraapi.Conn, error) {
				return nil, stderrors.New("not dialable")
			}), nil
		}))

	cfg := config.NewConnectorConfig("test")
	d, err := r.CreateDialer("fake", cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.Same(t, cfg, seen)

	assert.True(t, r.HasBackend("fake"))
	info, err := r.Info("fake")
	require.NoError(t, err)
	assert.Equal(t, "test backend", info.Description)
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	factory := func(*config.ConnectorConfig) (akeraapi.Dialer, error) { return nil, nil }

	require.NoError(t, r.RegisterBackend(BackendInfo{Name: "fake"}, factory))
	err := r.RegisterBackend(BackendInfo{Name: "fake"}, factory)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCreateUnknownBackend(t *testing.T) {
	r := NewRegistry()
	factory := func(*config.ConnectorConfig) (akeraapi.Dialer, error) { return nil, nil }
	require.NoError(t, r.RegisterBackend(BackendInfo{Name: "b"}, factory))
	require.NoError(t, r.RegisterBackend(BackendInfo{Name: "a"}, factory))

	_, err := r.CreateDialer("c", config.NewConnectorConfig("test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend c not found")

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, []string{"a", "b"}, e.Details["available"])

	_, err = r.Info("c")
	assert.Error(t, err)
}

func TestFactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBackend(BackendInfo{Name: "broken"},
		func(*config.ConnectorConfig) (akeraapi.Dialer, error) {
			return nil, stderrors.New("missing credentials")
		}))

	_, err := r.CreateDialer("broken", config.NewConnectorConfig("test"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create backend broken")
	assert.Contains(t, err.Error(), "missing credentials")
}

func TestClear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterBackend(BackendInfo{Name: "fake"},
		func(*config.ConnectorConfig) (akeraapi.Dialer, error) { return nil, nil }))

	r.Clear()
	assert.Empty(t, r.ListBackends())
	assert.False(t, r.HasBackend("fake"))
}
