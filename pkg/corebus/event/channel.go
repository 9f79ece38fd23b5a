package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
)

// DefaultRequestTimeout bounds a Request without an explicit timeout.
const DefaultRequestTimeout = 5 * time.Second

// Channel is a per-module view of the bus. Publishes are prefixed with the
// module namespace; Request/OnRequest implement correlated RPC on top of
// plain events.
type Channel struct {
	module string
	bus    *Bus
}

// Channel returns a namespacing facade for the given module.
func (b *Bus) Channel(moduleID string) *Channel {
	return &Channel{module: moduleID, bus: b}
}

// Module returns the channel's module id.
func (c *Channel) Module() string {
	return c.module
}

// Publish publishes "<module>.<eventType>" with this module as source.
func (c *Channel) Publish(ctx context.Context, eventType string, payload map[string]any, opts ...Option) error {
	evt := New(c.module+"."+eventType, c.module, payload, opts...)
	return c.bus.Publish(ctx, evt)
}

// Subscribe listens within this module's namespace. The glob is matched
// against the suffix after "<module>.".
func (c *Channel) Subscribe(glob string, fn HandlerFunc, opts ...HandlerOption) HandlerID {
	return c.bus.Subscribe(Glob(c.module+"."+glob), fn, opts...)
}

// SubscribeExternal listens across namespaces on another module's events.
func (c *Channel) SubscribeExternal(module, glob string, fn HandlerFunc, opts ...HandlerOption) HandlerID {
	return c.bus.Subscribe(Glob(module+"."+glob), fn, opts...)
}

// RequestOption configures a Request call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout time.Duration
}

// WithRequestTimeout overrides the default 5s request deadline.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) {
		cfg.timeout = d
	}
}

// Request publishes "<target>.request.<action>" with a fresh correlation id
// and waits for the matching "<target>.response.<correlationId>". It
// returns the responder's result, the responder's error, or a
// RequestTimeoutError when no response arrives in time. The transient
// response subscription is removed on first match or timeout.
func (c *Channel) Request(ctx context.Context, target, action string, data map[string]any, opts ...RequestOption) (any, error) {
	cfg := requestConfig{timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	corrID := uuid.New().String()
	respCh := make(chan Event, 1)

	subID := c.bus.Subscribe(Exact(target+".response."+corrID), func(_ context.Context, evt Event) error {
		select {
		case respCh <- evt:
		default:
		}
		return nil
	})
	defer c.bus.Unsubscribe(subID)

	req := New(target+".request."+action, c.module, data,
		WithTarget(target),
		WithCorrelationID(corrID),
	)

	// Publish asynchronously: the fan-out awaits the responder's handler,
	// and the request deadline must bound that wait too.
	go func() {
		_ = c.bus.Publish(ctx, req)
	}()

	select {
	case resp := <-respCh:
		if errVal, ok := resp.Payload["error"]; ok && errVal != nil {
			return nil, &cberrors.HandlerError{
				Handler: target + "." + action,
				Err:     fmt.Errorf("%v", errVal),
			}
		}
		return resp.Payload["result"], nil
	case <-c.bus.clock.After(cfg.timeout):
		return nil, &cberrors.RequestTimeoutError{
			Target:        target,
			Action:        action,
			CorrelationID: corrID,
			Timeout:       cfg.timeout,
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestHandler answers one request action. The returned value becomes the
// response payload's "result"; a non-nil error (or panic) becomes its
// "error".
type RequestHandler func(ctx context.Context, data map[string]any) (any, error)

// OnRequest registers the responder side for an action. Every
// "<module>.request.<action>" event is answered with a correlated
// "<module>.response.<correlationId>" carrying the handler's result or
// error.
func (c *Channel) OnRequest(action string, fn RequestHandler) HandlerID {
	return c.bus.Subscribe(Exact(c.module+".request."+action), func(ctx context.Context, evt Event) error {
		result, err := callRequestHandler(fn, ctx, evt.Payload)

		var payload map[string]any
		if err != nil {
			payload = map[string]any{"error": err.Error()}
		} else {
			payload = map[string]any{"result": result}
		}

		resp := New(c.module+".response."+evt.Meta.CorrelationID, c.module, payload,
			WithTarget(evt.Source),
			WithCorrelationID(evt.Meta.CorrelationID),
			WithCausationID(evt.ID),
		)
		return c.bus.Publish(ctx, resp)
	})
}

// callRequestHandler invokes a request handler, converting panics into
// errors so the requester still gets a response.
func callRequestHandler(fn RequestHandler, ctx context.Context, data map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, data)
}
