package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// Orchestrator coordinates notification processing: dedup, persistence,
// then routing to worker jobs.
type Orchestrator struct {
	store DedupStore
	queue Queue
	log   *slog.Logger
}

func NewOrchestrator(store DedupStore, queue Queue) *Orchestrator {
	return &Orchestrator{
		store: store,
		queue: queue,
		log:   slog.Default().With("component", "ingest"),
	}
}

// Process handles one incoming notification. Duplicates are skipped
// without error; new notifications are recorded and routed.
func (o *Orchestrator) Process(ctx context.Context, n Notification) error {
	seen, err := o.store.Seen(ctx, n.Hash)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if seen {
		o.log.Info("skipping duplicate notification", "hash", n.Hash, "type", n.Type)
		return nil
	}

	if err := o.store.Record(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}

	if err := o.route(ctx, n); err != nil {
		return fmt.Errorf("route notification: %w", err)
	}
	return nil
}

// route dispatches a notification to a worker job. ApprovalRequested
// triggers validation (the agent check for agent-validated tasks),
// TaskRejected triggers refund processing; everything else is
// informational.
func (o *Orchestrator) route(ctx context.Context, n Notification) error {
	switch n.Type {
	case "ApprovalRequested":
		jobType := JobTypeRequestValidation
		if isAgent, _ := n.Payload["agent"].(bool); isAgent {
			jobType = JobTypeRunAgentCheck
		}
		return o.queue.Enqueue(ctx, jobType, o.jobPayload(n), 3)
	case "TaskRejected":
		return o.queue.Enqueue(ctx, JobTypeProcessRefund, o.jobPayload(n), 3)
	default:
		o.log.Info("informational notification", "type", n.Type, "task_id", n.TaskID)
		return nil
	}
}

func (o *Orchestrator) jobPayload(n Notification) JobPayload {
	return JobPayload{
		TaskID:   n.TaskID,
		Type:     n.Type,
		Sequence: n.Sequence,
		SourceID: n.SourceID,
		Payload:  n.Payload,
	}
}

// History returns the recorded notifications for a task.
func (o *Orchestrator) History(ctx context.Context, taskID int64) ([]Notification, error) {
	return o.store.ByTask(ctx, taskID)
}
