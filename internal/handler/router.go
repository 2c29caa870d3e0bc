package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skypro1111/udp-request-server/internal/protocol"
)

// ErrUnknownRequest is returned for request types with no registered route
var ErrUnknownRequest = errors.New("unknown request type")

// RouteFunc handles one request type
type RouteFunc func(ctx context.Context, msg protocol.Message) (any, error)

// Router dispatches requests to routes by request type
type Router struct {
	routes map[string]RouteFunc
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewRouter creates an empty router
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		routes: make(map[string]RouteFunc),
		logger: logger,
	}
}

// Register adds or replaces the route for requestType
func (r *Router) Register(requestType string, route RouteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[requestType]; exists {
		r.logger.Warn("Replacing request route", slog.String("request_type", requestType))
	}
	r.routes[requestType] = route
}

// Handle runs the route registered for requestType
func (r *Router) Handle(ctx context.Context, requestType string, msg protocol.Message) (any, error) {
	r.mu.RLock()
	route, exists := r.routes[requestType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, requestType)
	}
	return route(ctx, msg)
}

// Len returns the number of registered routes
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// NewDefaultRouter returns a router serving ping, echo, set and get, the
// last two backed by store
func NewDefaultRouter(logger *slog.Logger, store *MemoryStore) *Router {
	router := NewRouter(logger)

	router.Register("ping", func(ctx context.Context, msg protocol.Message) (any, error) {
		return protocol.Message{"result": "pong"}, nil
	})

	router.Register("echo", func(ctx context.Context, msg protocol.Message) (any, error) {
		return msg, nil
	})

	router.Register("set", func(ctx context.Context, msg protocol.Message) (any, error) {
		key, ok := msg["key"].(string)
		if !ok || key == "" {
			return protocol.Message{"result": "error", "error": "key must be a non-empty string"}, nil
		}
		if err := store.Set(key, msg["value"]); err != nil {
			return nil, err
		}
		return protocol.Message{"result": "ok", "key": key}, nil
	})

	router.Register("get", func(ctx context.Context, msg protocol.Message) (any, error) {
		key, ok := msg["key"].(string)
		if !ok || key == "" {
			return protocol.Message{"result": "error", "error": "key must be a non-empty string"}, nil
		}
		value, found, err := store.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return protocol.Message{"result": "not_found", "key": key}, nil
		}
		return protocol.Message{"result": "ok", "key": key, "value": value}, nil
	})

	return router
}
