// Package archive persists dead-lettered messages for inspection after
// the broker's retention sweep has purged them. It is a sink: the broker
// appends, operators list and count. Nothing is ever re-driven from the
// archive.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("archive: store closed")

// Record is one dead-lettered message.
type Record struct {
	MessageID      string    `json:"message_id"`
	Queue          string    `json:"queue"`
	OriginQueue    string    `json:"origin_queue,omitempty"`
	Type           string    `json:"type"`
	Payload        []byte    `json:"payload,omitempty"`
	Error          string    `json:"error,omitempty"`
	Attempts       int       `json:"attempts"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

// NewRecord builds a record, serializing the payload. A payload that
// cannot be serialized is archived without one.
func NewRecord(messageID, queue, originQueue, msgType string, payload map[string]any, attempts int, errMsg string, at time.Time) Record {
	var raw []byte
	if len(payload) > 0 {
		raw, _ = json.Marshal(payload)
	}
	return Record{
		MessageID:      messageID,
		Queue:          queue,
		OriginQueue:    originQueue,
		Type:           msgType,
		Payload:        raw,
		Error:          errMsg,
		Attempts:       attempts,
		DeadLetteredAt: at,
	}
}

// Filter narrows List and Count. Zero fields match everything.
type Filter struct {
	// Queue matches the queue the message dead-lettered on.
	Queue string

	// Type matches the message type.
	Type string

	// Since matches records at or after this instant.
	Since time.Time

	// Limit bounds List results. 0 means no bound.
	Limit int
}

func (f Filter) matches(r Record) bool {
	if f.Queue != "" && r.Queue != f.Queue {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && r.DeadLetteredAt.Before(f.Since) {
		return false
	}
	return true
}

// Store persists dead-letter records.
type Store interface {
	// Append records one dead-lettered message.
	Append(ctx context.Context, rec Record) error

	// List returns matching records, oldest first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Count returns how many records match.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close releases resources.
	Close() error
}
