package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/udp-request-server/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultRouter(t *testing.T) {
	store := NewMemoryStore()
	router := NewDefaultRouter(testLogger(), store)
	ctx := context.Background()

	tests := []struct {
		name        string
		requestType string
		msg         protocol.Message
		expected    any
		expectError error
	}{
		{
			name:        "ping",
			requestType: "ping",
			msg:         protocol.Message{"requestType": "ping"},
			expected:    protocol.Message{"result": "pong"},
		},
		{
			name:        "echo returns the request",
			requestType: "echo",
			msg:         protocol.Message{"requestType": "echo", "text": "hi"},
			expected:    protocol.Message{"requestType": "echo", "text": "hi"},
		},
		{
			name:        "set without key",
			requestType: "set",
			msg:         protocol.Message{"requestType": "set"},
			expected:    protocol.Message{"result": "error", "error": "key must be a non-empty string"},
		},
		{
			name:        "set stores value",
			requestType: "set",
			msg:         protocol.Message{"requestType": "set", "key": "score", "value": json.Number("42")},
			expected:    protocol.Message{"result": "ok", "key": "score"},
		},
		{
			name:        "get returns stored value",
			requestType: "get",
			msg:         protocol.Message{"requestType": "get", "key": "score"},
			expected:    protocol.Message{"result": "ok", "key": "score", "value": json.Number("42")},
		},
		{
			name:        "get missing key",
			requestType: "get",
			msg:         protocol.Message{"requestType": "get", "key": "nope"},
			expected:    protocol.Message{"result": "not_found", "key": "nope"},
		},
		{
			name:        "unknown request type",
			requestType: "fly",
			msg:         protocol.Message{"requestType": "fly"},
			expectError: ErrUnknownRequest,
		},
	}

	// Cases depend on each other through the store, so they run in order
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response, err := router.Handle(ctx, tt.requestType, tt.msg)
			if tt.expectError != nil {
				assert.True(t, errors.Is(err, tt.expectError), "expected %v, got %v", tt.expectError, err)
				assert.Nil(t, response)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, response)
		})
	}
}

func TestRouterKeepsLargeIntegersThroughStore(t *testing.T) {
	router := NewDefaultRouter(testLogger(), NewMemoryStore())
	ctx := context.Background()

	decode := func(msg protocol.Message) protocol.Message {
		data, err := protocol.Encode(msg)
		require.NoError(t, err)
		decoded, err := protocol.Decode(data)
		require.NoError(t, err)
		return decoded
	}

	_, err := router.Handle(ctx, "set", decode(protocol.Message{"requestType": "set", "key": "id", "value": int64(9007199254740993)}))
	require.NoError(t, err)

	response, err := router.Handle(ctx, "get", decode(protocol.Message{"requestType": "get", "key": "id"}))
	require.NoError(t, err)

	data, err := protocol.Encode(response)
	require.NoError(t, err)
	reply, err := protocol.DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), reply["value"])
}

func TestRouterRegisterReplaces(t *testing.T) {
	router := NewRouter(testLogger())
	router.Register("a", func(ctx context.Context, msg protocol.Message) (any, error) { return 1, nil })
	router.Register("a", func(ctx context.Context, msg protocol.Message) (any, error) { return 2, nil })

	assert.Equal(t, 1, router.Len())

	response, err := router.Handle(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, response)
}

func TestRouterStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	router := NewDefaultRouter(testLogger(), store)
	require.NoError(t, store.Close())

	_, err := router.Handle(context.Background(), "set", protocol.Message{"key": "k", "value": "v"})
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = router.Handle(context.Background(), "get", protocol.Message{"key": "k"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.Set("b", json.Number("2")))
	assert.Equal(t, 2, store.Len())

	value, found, err := store.Get("a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", value)

	_, found, err = store.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, store.Set("c", 3), ErrStoreClosed)
}
