package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
	"github.com/marrowlabs/corebus/pkg/corebus/observability"
)

// DefaultJobQueue is where job runs are published unless overridden.
const DefaultJobQueue = "default"

// ScheduleType selects one-shot or recurring execution.
type ScheduleType string

// Schedule types.
const (
	ScheduleOnce      ScheduleType = "once"
	ScheduleRecurring ScheduleType = "recurring"
)

// Schedule says when a job runs.
type Schedule struct {
	// Type selects one-shot or recurring execution.
	Type ScheduleType `json:"type"`

	// At is the instant a one-shot job fires. An instant in the past
	// fires immediately.
	At time.Time `json:"at,omitempty"`

	// Interval is the period of a recurring job. The first run is one
	// interval after scheduling.
	Interval time.Duration `json:"interval,omitempty"`
}

// JobStatus is a job's lifecycle state.
type JobStatus string

// Job statuses. Recurring jobs stay scheduled between runs.
const (
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a scheduled unit of work. Each run publishes a "job.<type>"
// message into the job's queue with the job id as causation.
type Job struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Queue    string         `json:"queue"`
	Data     map[string]any `json:"data,omitempty"`
	Schedule Schedule       `json:"schedule"`
	Status   JobStatus      `json:"status"`

	// Result is the id of the most recently published run message.
	Result string `json:"result,omitempty"`

	// Error preserves the most recent run failure.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	// Runs counts completed firings.
	Runs int `json:"runs"`

	timer clockwork.Timer
}

// JobOption configures a scheduled job.
type JobOption func(*Job)

// WithJobQueue publishes the job's run messages into the named queue
// instead of the default queue.
func WithJobQueue(name string) JobOption {
	return func(j *Job) {
		j.Queue = name
	}
}

// ScheduleJob registers a job and arms its timer. The returned id cancels
// or inspects the job.
func (b *Broker) ScheduleJob(jobType string, data map[string]any, sched Schedule, opts ...JobOption) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return "", &cberrors.ValidationError{Entity: "broker", Message: "stopped"}
	}
	if jobType == "" {
		return "", &cberrors.ValidationError{Entity: "job", Message: "type is required"}
	}

	now := b.clock.Now()
	var delay time.Duration
	switch sched.Type {
	case ScheduleOnce:
		if sched.At.IsZero() {
			return "", &cberrors.ValidationError{Entity: "job", Message: "once schedule requires an instant"}
		}
		delay = sched.At.Sub(now)
		if delay < 0 {
			delay = 0
		}
	case ScheduleRecurring:
		if sched.Interval <= 0 {
			return "", &cberrors.ValidationError{Entity: "job", Message: "recurring schedule requires a positive interval"}
		}
		delay = sched.Interval
	default:
		return "", &cberrors.ValidationError{Entity: "job", Message: "unknown schedule type"}
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Queue:     DefaultJobQueue,
		Data:      data,
		Schedule:  sched,
		Status:    JobScheduled,
		CreatedAt: now,
	}
	for _, opt := range opts {
		opt(job)
	}
	if _, ok := b.queues[job.Queue]; !ok {
		return "", &cberrors.ValidationError{Entity: "queue", ID: job.Queue, Message: "not found"}
	}

	next := now.Add(delay)
	job.NextRunAt = &next
	b.jobs[job.ID] = job
	b.armJobLocked(job, delay)

	b.emit("job.scheduled", map[string]any{
		"job_id":   job.ID,
		"job_type": job.Type,
		"queue":    job.Queue,
		"next_run": next,
	})
	return job.ID, nil
}

// CancelJob removes a job before its next run. Only jobs still scheduled
// can be canceled; a running one-shot job settles on its own.
func (b *Broker) CancelJob(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return &cberrors.ValidationError{Entity: "job", ID: id, Message: "not found"}
	}
	if job.Status != JobScheduled {
		return &cberrors.ValidationError{Entity: "job", ID: id, Message: "not cancelable in status " + string(job.Status)}
	}
	if job.timer != nil {
		job.timer.Stop()
	}
	delete(b.jobs, id)
	return nil
}

// Job returns a copy of a job, for inspection and tests.
func (b *Broker) Job(id string) (Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return Job{}, false
	}
	snapshot := *job
	snapshot.timer = nil
	return snapshot, true
}

// armJobLocked arms the timer for a job's next run.
func (b *Broker) armJobLocked(job *Job, delay time.Duration) {
	if b.stopped {
		return
	}
	id := job.ID
	job.timer = b.clock.AfterFunc(delay, func() {
		b.runJob(id)
	})
}

// runJob fires one job run: publish the run message, settle the job, and
// rearm recurring schedules.
func (b *Broker) runJob(id string) {
	b.mu.Lock()
	job, ok := b.jobs[id]
	if !ok || b.stopped || job.Status != JobScheduled {
		b.mu.Unlock()
		return
	}
	job.Status = JobRunning
	now := b.clock.Now()
	job.LastRunAt = &now
	job.NextRunAt = nil
	jobType := job.Type
	queueName := job.Queue
	data := job.Data
	recurring := job.Schedule.Type == ScheduleRecurring
	b.mu.Unlock()

	ctx, span := b.spans.StartJobSpan(context.Background(), jobType, id)
	observability.LogJobRun(b.log, id, jobType, recurring)

	msgID, err := b.Publish(queueName, "job."+jobType, data,
		WithCorrelationID(id),
		WithCausationID(id),
	)

	b.metrics.RecordJobRun(ctx, jobType, err == nil)
	b.spans.EndSpanWithError(span, err)

	b.mu.Lock()
	job, ok = b.jobs[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	job.Runs++
	if err != nil {
		job.Error = err.Error()
	} else {
		job.Result = msgID
		job.Error = ""
	}

	var payload map[string]any
	eventType := "job.completed"
	switch {
	case recurring:
		// A failed run does not stop the schedule; the next run may find
		// queue capacity again.
		job.Status = JobScheduled
		next := b.clock.Now().Add(job.Schedule.Interval)
		job.NextRunAt = &next
		b.armJobLocked(job, job.Schedule.Interval)
	case err != nil:
		job.Status = JobFailed
	default:
		job.Status = JobCompleted
	}
	payload = map[string]any{
		"job_id":   id,
		"job_type": jobType,
		"queue":    queueName,
		"runs":     job.Runs,
	}
	if err != nil {
		eventType = "job.failed"
		payload["error"] = err.Error()
	} else {
		payload["message_id"] = msgID
	}
	b.mu.Unlock()

	b.emit(eventType, payload)
}
