// Package audit records what happened to each filter on its way from intent
// to rows: resolve, confirm, compile, execute and preview outcomes together
// with the hashes that identify the artifacts involved.
package audit

import (
	"context"
	"time"

	"shipfilter/internal/filterspec"
)

type Action string

const (
	ActionResolve Action = "resolve"
	ActionConfirm Action = "confirm"
	ActionCompile Action = "compile"
	ActionExecute Action = "execute"
	ActionPreview Action = "preview"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Event is one audited pipeline step.
type Event struct {
	ID                string               `json:"id"`
	SessionID         string               `json:"session_id,omitempty"`
	Action            Action               `json:"action"`
	Status            string               `json:"status"`
	Code              filterspec.ErrorCode `json:"code,omitempty"`
	SpecHash          string               `json:"spec_hash,omitempty"`
	CompiledHash      string               `json:"compiled_hash,omitempty"`
	SchemaSignature   string               `json:"schema_signature,omitempty"`
	DictionaryVersion string               `json:"dictionary_version,omitempty"`
	Dialect           string               `json:"dialect,omitempty"`
	RowCount          int64                `json:"row_count"`
	DurationMs        float64              `json:"duration_ms"`
	CreatedAt         time.Time            `json:"created_at"`
}

// Fail marks the event as failed with the error's code. Errors without a
// code keep an empty code.
func (e *Event) Fail(err error) {
	e.Status = StatusError
	e.Code = filterspec.CodeOf(err)
}

// Recorder accepts events. Implementations must not block the caller.
type Recorder interface {
	Record(e Event)
}

// Writer persists a batch of events.
type Writer interface {
	InsertAuditEvents(ctx context.Context, events []Event) error
}

// Pruner deletes events created before a cutoff.
type Pruner interface {
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Query filters a listing of stored events. Zero fields match everything.
type Query struct {
	SessionID string
	Action    Action
	Limit     int
}
