// Package queue provides the in-process message broker: named queues with
// competing consumers, retry with exponential backoff, dead-letter
// pairing, scheduled jobs, and housekeeping sweeps.
//
// # Lifecycle
//
// A message moves pending -> processing -> completed, or back to pending
// with backoff while attempts remain, or to dead-letter once the attempt
// budget is spent. Dead-lettered messages are copied into the queue's
// paired dead-letter queue as fresh pending messages with the origin
// queue and last error preserved in metadata.
//
// # Queues
//
// Four dispatch disciplines: standard (FIFO), priority (band 0 first),
// delayed (FIFO among messages whose delay elapsed), and broadcast (every
// consumer gets its own copy). Each queue can bound size, cap dispatch
// rate across its consumers, and pair with a dead-letter queue.
//
//	broker := queue.NewBroker(queue.BrokerConfig{Bus: bus})
//	broker.CreateQueue("emails", queue.TypeStandard, queue.Config{
//	    MaxRetries: 5,
//	    RateLimit:  &queue.RateLimit{Requests: 10, Window: time.Second},
//	})
//
//	broker.Subscribe("emails", func(ctx context.Context, msg queue.Message) error {
//	    return send(msg.Payload)
//	}, queue.WithConcurrency(4))
//
//	broker.Publish("emails", "welcome", map[string]any{"to": "a@example.com"})
//
// # Jobs
//
// The scheduler fires one-shot and recurring jobs; each run publishes a
// "job.<type>" message into the job's queue with the job id as causation,
// so job work flows through the same retry machinery as any other message.
//
// # Observability
//
// When a bus is configured the broker announces lifecycle events on the
// "queue" channel (message.published, message.completed, message.retry,
// message.dead-letter, message.expired, consumer.paused, consumer.resumed,
// consumer.stopped, job.scheduled, job.completed, job.failed). Emission is
// best-effort; the broker never depends on the bus for correctness.
package queue
