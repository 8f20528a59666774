// Package ingest receives externally observed state-change
// notifications, deduplicates them and routes them to async workers.
// The core escrow/task/sponsor components stay synchronous; everything
// asynchronous lives behind this boundary.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Notification is one externally observed state change, as delivered by
// the indexer webhook. Hash is a content address used for dedup.
type Notification struct {
	Hash     string         `json:"hash"`
	Type     string         `json:"type"`
	TaskID   int64          `json:"task_id"`
	Sequence int64          `json:"sequence"`
	SourceID string         `json:"source_id"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// ComputeHash computes the dedup hash for a notification from its
// identifying fields.
func ComputeHash(eventType string, taskID, sequence int64, sourceID string) string {
	data := fmt.Sprintf("%s:%d:%d:%s", eventType, taskID, sequence, sourceID)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// JobType names an async worker job.
type JobType string

const (
	JobTypeRequestValidation JobType = "REQUEST_VALIDATION"
	JobTypeRunAgentCheck     JobType = "RUN_AGENT_CHECK"
	JobTypeProcessRefund     JobType = "PROCESS_REFUND"
)

// JobPayload is the data handed to a worker.
type JobPayload struct {
	TaskID   int64          `json:"task_id"`
	Type     string         `json:"type"`
	Sequence int64          `json:"sequence"`
	SourceID string         `json:"source_id"`
	Payload  map[string]any `json:"payload,omitempty"`
}
