package link

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exclave-io/exclave/internal/runtime/config"
	"github.com/exclave-io/exclave/internal/runtime/logging"
	"github.com/exclave-io/exclave/internal/runtime/registry"
)

func testLogger() watermill.LoggerAdapter {
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	serviceLogger := logging.NewSlogServiceLogger(slogger)
	return logging.NewWatermillAdapter(serviceLogger)
}

func TestDefaultFactory(t *testing.T) {
	factory := DefaultFactory()
	assert.NotNil(t, factory)
}

func TestDefaultFactory_Build_Channel(t *testing.T) {
	factory := DefaultFactory()
	ctx := context.Background()
	conf := &config.Config{
		LinkSystem: "channel",
	}

	l, err := factory.Build(ctx, conf, testLogger())
	require.NoError(t, err)
	defer l.Close()

	assert.NotNil(t, l.Publisher)
	assert.NotNil(t, l.Subscriber)
	assert.Equal(t, "channel", l.Capabilities.Name)
	assert.True(t, l.Capabilities.SameProcessOnly())
}

func TestDefaultFactory_Build_NilConfig(t *testing.T) {
	factory := DefaultFactory()

	_, err := factory.Build(context.Background(), nil, testLogger())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestDefaultFactory_Build_UnknownLink(t *testing.T) {
	factory := DefaultFactory()
	conf := &config.Config{
		LinkSystem: "carrier-pigeon",
	}

	_, err := factory.Build(context.Background(), conf, testLogger())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown link")
}

func TestEffectiveConfig(t *testing.T) {
	base := &config.Config{
		LinkSystem:    "channel",
		NATSURL:       "nats://localhost:4222",
		ChannelBuffer: 16,
	}

	t.Run("no overrides returns equal copy", func(t *testing.T) {
		merged, err := EffectiveConfig(base, registry.Options{})
		require.NoError(t, err)
		assert.Equal(t, base, merged)
		assert.NotSame(t, base, merged)
	})

	t.Run("link override wins", func(t *testing.T) {
		merged, err := EffectiveConfig(base, registry.Options{Link: "nats"})
		require.NoError(t, err)
		assert.Equal(t, "nats", merged.LinkSystem)
		assert.Equal(t, "channel", base.LinkSystem)
	})

	t.Run("transferable override wins", func(t *testing.T) {
		merged, err := EffectiveConfig(base, registry.Options{Transferable: true})
		require.NoError(t, err)
		assert.True(t, merged.Transferable)
	})

	t.Run("link config keys apply", func(t *testing.T) {
		merged, err := EffectiveConfig(base, registry.Options{
			LinkConfig: map[string]string{
				"nats_url":       "nats://worker-host:4222",
				"channel_buffer": "128",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "nats://worker-host:4222", merged.NATSURL)
		assert.Equal(t, 128, merged.ChannelBuffer)
	})

	t.Run("proxy keys tolerated", func(t *testing.T) {
		merged, err := EffectiveConfig(base, registry.Options{
			LinkConfig: map[string]string{
				KeyPairID: "01abc",
				KeySpawn:  SpawnExternal,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, base, merged)
	})

	t.Run("invalid channel buffer errors", func(t *testing.T) {
		_, err := EffectiveConfig(base, registry.Options{
			LinkConfig: map[string]string{"channel_buffer": "lots"},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid channel_buffer")
	})

	t.Run("unknown key errors", func(t *testing.T) {
		_, err := EffectiveConfig(base, registry.Options{
			LinkConfig: map[string]string{"quantum_entanglement": "on"},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown link config key")
	})

	t.Run("nil config errors", func(t *testing.T) {
		_, err := EffectiveConfig(nil, registry.Options{})
		assert.Error(t, err)
	})
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "exclave.counterservice.01abc.c2w", CommandTopic("CounterService", "01abc"))
	assert.Equal(t, "exclave.counterservice.01abc.w2c", ReplyTopic("CounterService", "01abc"))
}

func TestTopicToken_Sanitizes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain name", in: "todo", want: "todo"},
		{name: "camel case lowered", in: "TodoService", want: "todoservice"},
		{name: "dots replaced", in: "todo.v2", want: "todo-v2"},
		{name: "spaces replaced", in: "todo service", want: "todo-service"},
		{name: "wildcards replaced", in: "todo*>", want: "todo--"},
		{name: "underscore and dash kept", in: "todo_service-2", want: "todo_service-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, topicToken(tt.in))
		})
	}
}
