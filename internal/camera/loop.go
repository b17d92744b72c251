package camera

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"plantify-cam/internal/advisory"
	"plantify-cam/internal/alert"
	"plantify-cam/internal/detect"
	"plantify-cam/internal/imaging"
	"plantify-cam/internal/protocol"
)

// labelNoDetector is broadcast with frames when no detector is configured.
const labelNoDetector = "detector_unavailable"

// sampleEvery bounds the detector invocation rate: only one frame in this
// many proceeds past sampling, whatever the camera frame rate is.
const sampleEvery = 3

const detectBudget = 5 * time.Second

// run is the capture worker. Device failures end it; a dropped active flag
// ends it too, unless the flag was raised again while the device was being
// released. The exit decision and the done-channel close happen under mu,
// so a concurrent SetActive either sees a worker that will resume or a
// closed done channel that lets it spawn a fresh one. A quick toggle off
// and back on can never leave the session active with no worker.
func (s *Session) run(done chan struct{}) {
	for {
		fatal := s.stream()

		s.mu.Lock()
		if !fatal && s.active && s.done == done {
			s.mu.Unlock()
			continue
		}
		close(done)
		s.mu.Unlock()
		return
	}
}

// stream covers one device acquisition: it owns the device from here to
// the deferred release, on every exit path. It returns when the active
// flag drops, or with fatal set when the device cannot be opened or a read
// fails; everything else is an iteration-level skip.
func (s *Session) stream() (fatal bool) {
	log := s.cfg.Logger

	dev, err := s.cfg.OpenDevice()
	if err != nil {
		log.Error("cannot open capture device", zap.Error(err))
		return true
	}
	defer func() {
		dev.Close()
		log.Info("capture device released")
	}()

	log.Info("capture device opened, streaming")

	var frameCount, seq uint64

	for s.Active() {
		img, err := dev.Read()
		if err != nil {
			log.Error("frame read failed, stopping worker", zap.Error(err))
			return true
		}

		frameCount++
		if frameCount%sampleEvery != 0 {
			time.Sleep(s.skipYield)
			continue
		}

		// Nobody watching: skip detection and broadcast entirely.
		if s.cfg.Hub.IsEmpty() {
			time.Sleep(s.idleYield)
			continue
		}

		seq++
		frame := Frame{Image: img, Timestamp: time.Now().UTC(), Seq: seq}
		if err := s.processFrame(frame); err != nil {
			log.Warn("frame skipped", zap.Uint64("seq", frame.Seq), zap.Error(err))
		}
		time.Sleep(s.loopYield)
	}
	return false
}

// processFrame runs detection, alerting, and broadcast for one frame.
// Any failure, panics included, is contained to this iteration.
func (s *Session) processFrame(frame Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame processing panic: %v", r)
		}
	}()

	img := frame.Image
	label := labelNoDetector
	if s.DetectorReady() {
		scaled := imaging.Downscale(frame.Image, imaging.MaxWidth, imaging.MaxHeight)

		ctx, cancel := context.WithTimeout(context.Background(), detectBudget)
		results, derr := s.cfg.Detector.Detect(ctx, scaled)
		cancel()
		if derr != nil {
			return fmt.Errorf("detect: %w", derr)
		}
		label = detect.TopLabel(results)
		// Viewers see what the detector saw, boxes rendered on.
		img = imaging.Annotate(scaled, annotations(results))
	}

	entry := s.cfg.Advice.Lookup(label)

	if s.DetectorReady() && advisory.IsDisease(label) {
		s.submitAlert(label, entry)
	}

	encoded, err := imaging.EncodeBase64(img, s.cfg.JPEGQuality)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	msg, err := protocol.NewMessage(protocol.TypeFrame, protocol.FramePayload{
		Image:  encoded,
		Label:  label,
		Advice: entry.Advice,
	})
	if err != nil {
		return fmt.Errorf("build frame message: %w", err)
	}
	s.cfg.Hub.Broadcast(msg)
	return nil
}

// annotations turns detections into drawable labeled boxes.
func annotations(results []detect.Result) []imaging.Annotation {
	anns := make([]imaging.Annotation, 0, len(results))
	for _, r := range results {
		anns = append(anns, imaging.Annotation{
			Label: fmt.Sprintf("%s %.2f", r.Label, r.Confidence),
			Box:   r.Box,
		})
	}
	return anns
}

// submitAlert hands a disease detection to the recorder. Recorder failures
// never touch the frame broadcast pipeline.
func (s *Session) submitAlert(label string, entry advisory.Entry) {
	outcome, err := s.cfg.Recorder.RecordAndNotify(alert.Candidate{
		Disease:    label,
		PlantID:    s.cfg.PlantID,
		Fertilizer: entry.Fertilizer,
		Pesticide:  entry.Pesticide,
		Solution:   entry.Solution,
	})
	if err != nil {
		s.cfg.Logger.Error("alert not recorded", zap.String("disease", label), zap.Error(err))
		return
	}
	if outcome == alert.OutcomeThrottled {
		s.cfg.Logger.Debug("alert throttled", zap.String("disease", label))
	}
}
