package camera

import (
	"image"
	"time"

	"plantify-cam/internal/imaging"
)

const syntheticFrameInterval = 33 * time.Millisecond

// SyntheticDevice generates a moving test pattern at roughly camera rate.
// It stands in for real hardware when no camera is configured, and in tests.
type SyntheticDevice struct {
	width    int
	height   int
	interval time.Duration
	seq      uint64
}

// NewSyntheticDevice creates a 640×480 synthetic camera.
func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{
		width:    imaging.MaxWidth,
		height:   imaging.MaxHeight,
		interval: syntheticFrameInterval,
	}
}

func (d *SyntheticDevice) Read() (image.Image, error) {
	time.Sleep(d.interval)
	d.seq++
	return imaging.TestPattern(d.width, d.height, d.seq*4), nil
}

func (d *SyntheticDevice) Close() error {
	return nil
}
