// Package camera owns the capture worker and its lifecycle. One Session
// coordinates at most one background worker that reads frames, samples
// them, runs detection, and broadcasts results.
package camera

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"plantify-cam/internal/advisory"
	"plantify-cam/internal/alert"
	"plantify-cam/internal/detect"
	"plantify-cam/internal/imaging"
	"plantify-cam/internal/protocol"
)

const (
	// DefaultRestartGrace bounds how long Restart waits for the previous
	// worker to release the device before reactivating anyway.
	DefaultRestartGrace = time.Second

	defaultSkipYield = 10 * time.Millisecond
	defaultIdleYield = 100 * time.Millisecond
	defaultLoopYield = 100 * time.Millisecond
)

// Broadcaster is the subscriber registry as the worker sees it.
type Broadcaster interface {
	Broadcast(*protocol.Message)
	IsEmpty() bool
}

// AlertRecorder debounces and persists qualifying detections.
type AlertRecorder interface {
	RecordAndNotify(alert.Candidate) (alert.Outcome, error)
}

// Config wires a session to its collaborators.
type Config struct {
	OpenDevice  OpenFunc
	Detector    detect.Detector // nil when no detector is configured
	Advice      *advisory.Book
	Recorder    AlertRecorder
	Hub         Broadcaster
	PlantID     int64
	JPEGQuality int
	Logger      *zap.Logger
}

// Session is the lifecycle controller for one camera. The active flag and
// the worker handle are only touched under mu, so concurrent toggle or
// restart calls can never spawn two workers.
type Session struct {
	cfg Config

	mu     sync.Mutex
	active bool
	done   chan struct{} // closed when the current worker has released the device

	// Cooperative yield points; shortened in tests.
	skipYield time.Duration
	idleYield time.Duration
	loopYield time.Duration
}

// NewSession creates an inactive session.
func NewSession(cfg Config) *Session {
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = imaging.DefaultJPEGQuality
	}
	return &Session{
		cfg:       cfg,
		skipYield: defaultSkipYield,
		idleYield: defaultIdleYield,
		loopYield: defaultLoopYield,
	}
}

// SetActive moves the session toward the desired state. It is idempotent:
// asking for the current state changes nothing. Activation spawns a worker
// only when the previous one has fully exited; a worker still winding down
// sees the raised flag before committing to exit and resumes instead.
// Deactivation just flips the flag and lets the worker notice it at its
// next iteration boundary.
func (s *Session) SetActive(desired bool) (changed, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == desired {
		return false, s.active
	}
	s.active = desired

	if desired && s.workerExited() {
		done := make(chan struct{})
		s.done = done
		go s.run(done)
	}
	return true, s.active
}

// Active reports the session's desired state. The worker polls this at the
// top of every iteration.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Restart deactivates, waits up to grace for the previous worker to release
// the device, then reactivates. If the grace period elapses first the
// reactivation proceeds anyway, so device acquisition may transiently fail.
func (s *Session) Restart(grace time.Duration) (active bool) {
	s.SetActive(false)

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(grace):
			s.cfg.Logger.Warn("restart grace period elapsed before device release")
		}
	}

	_, active = s.SetActive(true)
	return active
}

// DetectorReady reports whether a detector is configured and was reachable
// at startup.
func (s *Session) DetectorReady() bool {
	return s.cfg.Detector != nil && s.cfg.Detector.Available()
}

// workerExited reports whether the previous worker (if any) has finished.
// Callers hold mu.
func (s *Session) workerExited() bool {
	if s.done == nil {
		return true
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
