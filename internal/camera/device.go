package camera

import (
	"image"
	"time"
)

// Device is the capture boundary. A device is exclusively owned by the
// worker that opened it; no other component reads from or releases it.
type Device interface {
	// Read blocks until the next frame is available. A read error means
	// the device is broken for the rest of this worker's life.
	Read() (image.Image, error)

	// Close releases the device.
	Close() error
}

// OpenFunc acquires a capture device. It is called once at worker entry.
type OpenFunc func() (Device, error)

// Frame is one captured image during its trip through an iteration.
// Frames are ephemeral: owned by the loop until handed to encode/broadcast,
// then discarded.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
	Seq       uint64
}
