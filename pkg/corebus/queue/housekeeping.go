package queue

import (
	"github.com/marrowlabs/corebus/pkg/corebus/observability"
)

// cleanupLoop purges settled messages past their queue's retention,
// pending messages past their TTL, and settled jobs past the job
// retention. Processing messages are never touched.
func (b *Broker) cleanupLoop() {
	defer b.loops.Done()

	ticker := b.clock.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			b.sweep()
		case <-b.stopCh:
			return
		}
	}
}

// sweep runs one retention pass.
func (b *Broker) sweep() {
	type expiry struct {
		queue, id, msgType string
	}
	var expired []expiry
	purgedMessages := 0
	purgedJobs := 0

	b.mu.Lock()
	now := b.clock.Now()

	for _, q := range b.queues {
		for id, m := range q.messages {
			switch m.Status {
			case StatusCompleted, StatusDeadLetter:
				settledAt := m.CreatedAt
				if m.CompletedAt != nil {
					settledAt = *m.CompletedAt
				} else if m.ProcessedAt != nil {
					settledAt = *m.ProcessedAt
				}
				if now.Sub(settledAt) >= q.cfg.MessageRetention {
					delete(q.messages, id)
					purgedMessages++
				}
			case StatusPending:
				if m.expired(now) {
					delete(q.messages, id)
					purgedMessages++
					expired = append(expired, expiry{q.name, id, m.Type})
				}
			}
		}
	}

	for id, job := range b.jobs {
		if job.Status != JobCompleted && job.Status != JobFailed {
			continue
		}
		settledAt := job.CreatedAt
		if job.LastRunAt != nil {
			settledAt = *job.LastRunAt
		}
		if now.Sub(settledAt) >= b.cfg.JobRetention {
			delete(b.jobs, id)
			purgedJobs++
		}
	}
	b.mu.Unlock()

	observability.LogSweep(b.log, purgedMessages, purgedJobs)
	for _, e := range expired {
		b.emit("message.expired", map[string]any{
			"message_id": e.id,
			"queue":      e.queue,
			"type":       e.msgType,
		})
	}
}

// metricsLoop keeps throughput samples trimmed so snapshots stay cheap
// even on idle queues.
func (b *Broker) metricsLoop() {
	defer b.loops.Done()

	ticker := b.clock.NewTicker(b.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			b.mu.Lock()
			now := b.clock.Now()
			for _, q := range b.queues {
				q.trimCompletions(now)
			}
			b.mu.Unlock()
		case <-b.stopCh:
			return
		}
	}
}
