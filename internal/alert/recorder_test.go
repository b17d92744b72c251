package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plantify-cam/internal/protocol"
	"plantify-cam/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	saved  []store.Alert
	failOn error
}

func (f *fakeStore) SaveAlert(a store.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		return f.failOn
	}
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeHub struct {
	mu   sync.Mutex
	sent []*protocol.Message
}

func (f *fakeHub) Broadcast(msg *protocol.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func candidate() Candidate {
	return Candidate{
		Disease:    "Black_Spot_of_Jackfruit",
		PlantID:    1,
		Fertilizer: "NPK 20-20-20",
		Pesticide:  "Copper-based pesticide",
		Solution:   "Prune infected leaves and water moderately.",
	}
}

func newTestRecorder(st *fakeStore, hub *fakeHub, clock func() time.Time) *Recorder {
	r := NewRecorder(st, hub, NewThrottle(30*time.Second), zap.NewNop())
	r.now = clock
	return r
}

func TestRecordAndNotifyPersistsAndBroadcasts(t *testing.T) {
	st := &fakeStore{}
	hub := &fakeHub{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRecorder(st, hub, func() time.Time { return base })

	outcome, err := r.RecordAndNotify(candidate())
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, outcome)
	require.Equal(t, 1, st.count())
	require.Equal(t, 1, hub.count())

	saved := st.saved[0]
	require.NotEmpty(t, saved.ID)
	require.Equal(t, "Black_Spot_of_Jackfruit", saved.Disease)
	require.Contains(t, saved.Message, "Black_Spot_of_Jackfruit")
	require.Equal(t, protocol.TypeAlert, hub.sent[0].Type)
}

func TestRecordAndNotifyThrottledWithinWindow(t *testing.T) {
	st := &fakeStore{}
	hub := &fakeHub{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newTestRecorder(st, hub, func() time.Time { return now })

	outcome, err := r.RecordAndNotify(candidate())
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, outcome)

	// Second detection 10s later: suppressed, nothing persisted or sent.
	now = base.Add(10 * time.Second)
	outcome, err = r.RecordAndNotify(candidate())
	require.NoError(t, err)
	require.Equal(t, OutcomeThrottled, outcome)
	require.Equal(t, 1, st.count())
	require.Equal(t, 1, hub.count())
}

func TestRecordAndNotifyPassesAfterWindow(t *testing.T) {
	st := &fakeStore{}
	hub := &fakeHub{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newTestRecorder(st, hub, func() time.Time { return now })

	_, err := r.RecordAndNotify(candidate())
	require.NoError(t, err)

	now = base.Add(31 * time.Second)
	outcome, err := r.RecordAndNotify(candidate())
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, outcome)
	require.Equal(t, 2, st.count())
	require.Equal(t, 2, hub.count())
}

func TestRecordAndNotifyPersistFailure(t *testing.T) {
	st := &fakeStore{failOn: errors.New("disk full")}
	hub := &fakeHub{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newTestRecorder(st, hub, func() time.Time { return now })

	outcome, err := r.RecordAndNotify(candidate())
	require.ErrorIs(t, err, ErrPersistFailed)
	require.Equal(t, OutcomeFailed, outcome)
	require.Equal(t, 0, hub.count())

	// The failed attempt still consumed the window.
	st.failOn = nil
	now = base.Add(10 * time.Second)
	outcome, err = r.RecordAndNotify(candidate())
	require.NoError(t, err)
	require.Equal(t, OutcomeThrottled, outcome)

	now = base.Add(31 * time.Second)
	outcome, err = r.RecordAndNotify(candidate())
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, outcome)
}
