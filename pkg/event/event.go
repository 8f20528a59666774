// Package event carries the state-change notifications emitted by the
// escrow ledger, the task controller and the sponsorship tracker. The
// downstream ingestion service subscribes to these and handles its own
// deduplication.
package event

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airinterface/contract-safe/pkg/principal"
)

// Type categorizes a notification.
type Type string

const (
	TypeTaskCreated        Type = "TaskCreated"
	TypeTaskWorkingStarted Type = "TaskWorkingStarted"
	TypeApprovalRequested  Type = "ApprovalRequested"
	TypeValidationStarted  Type = "ValidationStarted"
	TypeTaskApproved       Type = "TaskApproved"
	TypePaymentProcessed   Type = "PaymentProcessed"
	TypeTaskRejected       Type = "TaskRejected"
	TypeTaskRefunded       Type = "TaskRefunded"
	TypeEscrowDeposited    Type = "EscrowDeposited"
	TypePaymentReleased    Type = "PaymentReleased"
	TypeRefundProcessed    Type = "RefundProcessed"
	TypeCostSponsored      Type = "CostSponsored"
	TypeCostRecorded       Type = "CostRecorded"
	TypeRateLimitExceeded  Type = "RateLimitExceeded"
)

// Event is a single structured notification.
type Event struct {
	ID        string              `json:"id"`
	Type      Type                `json:"type"`
	TaskID    int64               `json:"task_id,omitempty"`
	Actor     principal.Principal `json:"actor,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Payload   map[string]any      `json:"payload,omitempty"`
}

// New builds an Event with a fresh ID and the current time.
func New(typ Type, taskID int64, actor principal.Principal, payload map[string]any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		TaskID:    taskID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Emitter records notifications. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// writerEmitter writes one JSON line per event to a configurable Writer.
type writerEmitter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewWriterEmitter creates an Emitter writing JSON lines to w.
// A nil writer falls back to os.Stdout.
func NewWriterEmitter(w io.Writer) Emitter {
	if w == nil {
		w = os.Stdout
	}
	return &writerEmitter{writer: w}
}

func (e *writerEmitter) Emit(ctx context.Context, ev Event) error {
	bytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.writer.Write(append(bytes, '\n'))
	return err
}

// Nop is an Emitter that discards everything.
type Nop struct{}

func (Nop) Emit(ctx context.Context, ev Event) error { return nil }

// Multi fans an event out to several emitters. The first error wins but
// all emitters are attempted.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var first error
	for _, e := range m {
		if err := e.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder is an in-memory Emitter for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(typ Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
