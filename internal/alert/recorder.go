package alert

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plantify-cam/internal/protocol"
	"plantify-cam/internal/store"
)

// alertsChannel is the single throttle channel all alerts share today.
// Per-plant channels would key on the plant id instead.
const alertsChannel = "alerts"

// createdAtLayout is the timestamp format used in alert payloads.
const createdAtLayout = "2006-01-02 15:04:05"

// ErrPersistFailed wraps store failures surfaced by RecordAndNotify.
var ErrPersistFailed = errors.New("alert persist failed")

// Outcome distinguishes "recorded" from "suppressed by policy" from
// "failed"; only the last one is an error.
type Outcome int

const (
	OutcomeRecorded Outcome = iota
	OutcomeThrottled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Candidate is a detection that qualified for an alert, before the
// throttle has been consulted.
type Candidate struct {
	Disease    string
	PlantID    int64
	Fertilizer string
	Pesticide  string
	Solution   string
}

// AlertStore persists alert records.
type AlertStore interface {
	SaveAlert(store.Alert) error
}

// Broadcaster delivers a message to all current subscribers.
type Broadcaster interface {
	Broadcast(*protocol.Message)
}

// Recorder applies the throttle, persists qualifying alerts, and notifies
// subscribers of persisted ones.
type Recorder struct {
	store    AlertStore
	hub      Broadcaster
	throttle *Throttle
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecorder wires a recorder to its store, broadcaster, and throttle.
func NewRecorder(st AlertStore, hub Broadcaster, throttle *Throttle, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:    st,
		hub:      hub,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordAndNotify runs one candidate through the throttle, the store, and
// the subscriber broadcast.
//
// A throttled candidate is a valid outcome, not an error. A persist
// failure returns ErrPersistFailed; the consumed throttle window is not
// given back, so a failed attempt still suppresses alerts for one window.
// A broadcast problem after a successful persist is non-fatal.
func (r *Recorder) RecordAndNotify(c Candidate) (Outcome, error) {
	now := r.now().UTC()
	if !r.throttle.TryAcquire(alertsChannel, now) {
		return OutcomeThrottled, nil
	}

	a := store.Alert{
		ID:         uuid.New().String(),
		Disease:    c.Disease,
		PlantID:    c.PlantID,
		Fertilizer: c.Fertilizer,
		Pesticide:  c.Pesticide,
		Solution:   c.Solution,
		Message:    fmt.Sprintf("Disease %s detected on plant %d. %s", c.Disease, c.PlantID, c.Solution),
		CreatedAt:  now,
	}

	if err := r.store.SaveAlert(a); err != nil {
		r.logger.Error("alert persist failed", zap.String("disease", c.Disease), zap.Error(err))
		return OutcomeFailed, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	msg, err := protocol.NewMessage(protocol.TypeAlert, protocol.AlertPayload{
		Message:   a.Message,
		CreatedAt: a.CreatedAt.Format(createdAtLayout),
	})
	if err != nil {
		// Record stands; only the notification was lost.
		r.logger.Warn("alert broadcast skipped", zap.Error(err))
		return OutcomeRecorded, nil
	}
	r.hub.Broadcast(msg)

	return OutcomeRecorded, nil
}
