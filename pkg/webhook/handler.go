// Package webhook exposes the HTTP endpoint through which the external
// indexer delivers observed state-change notifications.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/airinterface/contract-safe/pkg/httpapi"
	"github.com/airinterface/contract-safe/pkg/ingest"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Indexer-Signature"

// Processor consumes notifications; satisfied by ingest.Orchestrator.
type Processor interface {
	Process(ctx context.Context, n ingest.Notification) error
}

// Handler validates and forwards indexer webhooks.
type Handler struct {
	processor Processor
	secret    string
	log       *slog.Logger
}

// NewHandler creates a webhook handler. An empty secret disables
// signature validation (dev mode only).
func NewHandler(processor Processor, secret string) *Handler {
	return &Handler{
		processor: processor,
		secret:    secret,
		log:       slog.Default().With("component", "webhook"),
	}
}

// payload is the wire format delivered by the indexer.
type payload struct {
	EventType string         `json:"eventType"`
	TaskID    int64          `json:"taskId"`
	Sequence  int64          `json:"sequence"`
	SourceID  string         `json:"sourceId"`
	Data      map[string]any `json:"data,omitempty"`
}

// HandleNotification handles an incoming webhook request.
func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpapi.WriteBadRequest(w, "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	if h.secret != "" {
		if !h.validSignature(body, r.Header.Get(SignatureHeader)) {
			httpapi.WriteUnauthorized(w, "invalid signature")
			return
		}
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		httpapi.WriteBadRequest(w, "invalid JSON payload")
		return
	}

	n := ingest.Notification{
		Hash:     ingest.ComputeHash(p.EventType, p.TaskID, p.Sequence, p.SourceID),
		Type:     p.EventType,
		TaskID:   p.TaskID,
		Sequence: p.Sequence,
		SourceID: p.SourceID,
		Payload:  p.Data,
	}

	if err := h.processor.Process(r.Context(), n); err != nil {
		h.log.Error("process notification", "type", n.Type, "task_id", n.TaskID, "error", err)
		httpapi.WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// validSignature compares the body HMAC against the supplied header in
// constant time.
func (h *Handler) validSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
