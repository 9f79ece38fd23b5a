// Package event provides the in-process event bus every module publishes
// and subscribes on.
//
// # Overview
//
//   - Event with category, priority, and correlation/causation metadata
//   - Pattern subscriptions: exact, glob ("*" matches any sequence), regex
//   - Priority-ordered fan-out with per-handler timeout and failure isolation
//   - Bounded history with trim-to-half eviction and filtered queries
//   - Channel: per-module namespacing plus correlated request/response
//
// # Failure isolation
//
// A handler that returns an error, panics, or exceeds its timeout never
// blocks or fails sibling handlers or the publisher. The failure goes to the
// handler's own ErrorHandler when set, otherwise to metrics and an
// observability-only "event-error" event. The bus never retries a handler;
// retry belongs to the message queue.
//
// # Pub/sub
//
//	bus := event.NewBus(event.BusConfig{HistorySize: 1000})
//	defer bus.Close()
//
//	id := bus.Subscribe(event.Glob("order.*"), func(ctx context.Context, evt event.Event) error {
//	    // handle order events
//	    return nil
//	})
//	defer bus.Unsubscribe(id)
//
//	bus.Publish(ctx, event.New("order.created", "orders", payload))
//
// # Request/response
//
// Channels correlate a request event with its response event:
//
//	inventory := bus.Channel("inventory")
//	inventory.OnRequest("reserve", func(ctx context.Context, data map[string]any) (any, error) {
//	    return reserve(data)
//	})
//
//	orders := bus.Channel("orders")
//	result, err := orders.Request(ctx, "inventory", "reserve", map[string]any{"sku": "A-1"})
package event
