package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"

	"go.uber.org/zap"

	"plantify-cam/internal/imaging"
)

const (
	detectTimeout = 5 * time.Second
	probeTimeout  = 3 * time.Second
)

// HTTPDetector calls an external inference service over HTTP. The service
// accepts a JPEG body on POST /detect and replies with a JSON array of
// {label, confidence, box} objects.
type HTTPDetector struct {
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
	available bool
}

// NewHTTPDetector probes the service once and records its availability.
// A nil return only happens on empty baseURL; an unreachable service still
// yields a detector, with Available reporting false.
func NewHTTPDetector(baseURL string, logger *zap.Logger) *HTTPDetector {
	if baseURL == "" {
		return nil
	}

	d := &HTTPDetector{
		baseURL: baseURL,
		client:  &http.Client{Timeout: detectTimeout},
		logger:  logger,
	}
	d.available = d.probe()
	if !d.available {
		logger.Warn("detector service unreachable at startup", zap.String("url", baseURL))
	}
	return d
}

// Available reports whether the startup probe succeeded.
func (d *HTTPDetector) Available() bool {
	return d.available
}

// Detect posts the frame as JPEG and decodes the detection list. Malformed
// frames and undecodable responses come back as empty results; only
// transport-level failures surface as errors.
func (d *HTTPDetector) Detect(ctx context.Context, frame image.Image) ([]Result, error) {
	if frame == nil {
		return nil, nil
	}

	data, err := imaging.EncodeJPEG(frame, imaging.DefaultJPEGQuality)
	if err != nil {
		// Malformed input frame: boundary swallows it.
		d.logger.Debug("frame not encodable, skipping detection", zap.Error(err))
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect call: status %d", resp.StatusCode)
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		d.logger.Debug("undecodable detector response", zap.Error(err))
		return nil, nil
	}
	return results, nil
}

func (d *HTTPDetector) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
