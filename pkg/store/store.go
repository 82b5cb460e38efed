package store

import (
	"context"
	"errors"
	"time"

	"github.com/harunnryd/serena/pkg/lead"
)

// ErrNotFound is returned when no call exists for a stream SID.
var ErrNotFound = errors.New("store: call not found")

const (
	DirectionUser      = "user"
	DirectionAssistant = "assistant"

	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// CallStart describes a new media stream. StreamSID is the identity;
// repeated starts for the same SID are no-ops.
type CallStart struct {
	StreamSID  string
	CallSID    string
	FromNumber string
	StartTime  time.Time
}

type Turn struct {
	StreamSID string
	Direction string
	Text      string
	Timestamp time.Time
	Metadata  map[string]string
}

type CallRecord struct {
	StreamSID  string
	CallSID    string
	FromNumber string
	StartTime  time.Time
	EndTime    *time.Time
	Status     string
	EndReason  string
	Lead       lead.Lead
	HasLead    bool
}

type TurnRecord struct {
	StreamSID string
	Direction string
	Text      string
	Timestamp time.Time
	Metadata  map[string]string
}

// Store persists calls, their transcript turns and any captured lead.
// Implementations must tolerate repeated LogCallStart and EndCall for
// the same stream, and apply LogLeadInfo last-write-wins.
type Store interface {
	LogCallStart(ctx context.Context, start CallStart) error
	LogCallTurn(ctx context.Context, turn Turn) error
	LogLeadInfo(ctx context.Context, streamSID string, l lead.Lead) error
	EndCall(ctx context.Context, streamSID, reason string) error
	Call(ctx context.Context, streamSID string) (CallRecord, error)
	Turns(ctx context.Context, streamSID string) ([]TurnRecord, error)
}
