// Package corebus is an in-process communication substrate with two
// cooperating components:
//
//   - an event bus (pattern subscriptions, priority fan-out, failure
//     isolation, request/response) in pkg/corebus/event
//   - a message broker (named queues, competing consumers, retry with
//     backoff, dead-lettering, scheduled jobs) in pkg/corebus/queue
//
// The broker announces message, consumer, and job lifecycle on the bus's
// "queue" channel, so any module can observe queue activity by
// subscribing; modules may also use the bus directly for fire-and-forget
// notifications or RPC-style exchanges, bypassing the queue entirely.
//
// Core wires both together from a config file:
//
//	cfg, err := config.FromFile("corebus.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	core, err := corebus.New(cfg, corebus.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	core.Start(ctx)
//	defer core.Stop(ctx)
//
//	core.Broker.Subscribe("email", sendEmail)
//	core.Broker.Publish("email", "welcome", map[string]any{"to": "a@example.com"})
//
// New creates a default topology: "default" (standard), "priority"
// (priority), "delayed" (delayed), "dead-letter" (standard, 7 day
// retention), "email" (rate limited), "analytics" (concurrency 10), and
// "notifications" (priority). Every queue without an explicit pairing
// dead-letters into "dead-letter".
package corebus
