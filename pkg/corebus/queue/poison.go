package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// errPoisonMessage is the cause recorded when the detector short-circuits
// a dispatch.
var errPoisonMessage = errors.New("poison message: identical payload repeatedly dead-lettered")

// PoisonConfig configures poison-message detection. A message whose
// fingerprint (queue, type, payload) has been dead-lettered
// FailureThreshold times within Window is dead-lettered immediately
// instead of being dispatched again.
type PoisonConfig struct {
	// FailureThreshold is the dead-letter count that flags a fingerprint.
	// Default: 3
	FailureThreshold int

	// Window is how long dead-letter observations count toward the
	// threshold.
	// Default: 1h
	Window time.Duration
}

// DefaultPoisonConfig provides reasonable defaults.
var DefaultPoisonConfig = PoisonConfig{
	FailureThreshold: 3,
	Window:           1 * time.Hour,
}

// PoisonDetector tracks dead-letter recurrence by message fingerprint.
type PoisonDetector struct {
	cfg   PoisonConfig
	clock clockwork.Clock

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewPoisonDetector creates a detector.
func NewPoisonDetector(cfg PoisonConfig, clock clockwork.Clock) *PoisonDetector {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultPoisonConfig.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultPoisonConfig.Window
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PoisonDetector{
		cfg:      cfg,
		clock:    clock,
		failures: make(map[string][]time.Time),
	}
}

// Record notes a dead-letter for the message's fingerprint.
func (d *PoisonDetector) Record(m *Message, now time.Time) {
	key := fingerprint(m)

	d.mu.Lock()
	defer d.mu.Unlock()

	times := d.trimLocked(key, now)
	d.failures[key] = append(times, now)
}

// Flagged reports whether the message's fingerprint crossed the
// threshold within the window.
func (d *PoisonDetector) Flagged(m *Message, now time.Time) bool {
	key := fingerprint(m)

	d.mu.Lock()
	defer d.mu.Unlock()

	times := d.trimLocked(key, now)
	if len(times) == 0 {
		delete(d.failures, key)
		return false
	}
	d.failures[key] = times
	return len(times) >= d.cfg.FailureThreshold
}

// trimLocked drops observations older than the window.
func (d *PoisonDetector) trimLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-d.cfg.Window)
	times := d.failures[key]
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}

// fingerprint identifies a message by queue, type, and canonical payload.
func fingerprint(m *Message) string {
	h := sha256.New()
	h.Write([]byte(m.Queue))
	h.Write([]byte{0})
	h.Write([]byte(m.Type))
	h.Write([]byte{0})
	h.Write(canonicalPayload(m.Payload))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalPayload renders a payload with sorted keys so equal payloads
// hash equally regardless of map iteration order.
func canonicalPayload(payload map[string]any) []byte {
	if len(payload) == 0 {
		return nil
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, '=')
		v, err := json.Marshal(payload[k])
		if err != nil {
			buf = append(buf, '?')
		} else {
			buf = append(buf, v...)
		}
		buf = append(buf, ';')
	}
	return buf
}
