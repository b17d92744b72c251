package camera

import (
	"fmt"
	"image"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// MJPEGDevice reads frames from an HTTP multipart MJPEG stream, the format
// most IP cameras expose.
type MJPEGDevice struct {
	resp   *http.Response
	reader *multipart.Reader
}

// OpenMJPEG connects to an MJPEG stream URL and prepares it for reading.
func OpenMJPEG(url string) (Device, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("open mjpeg stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open mjpeg stream: status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return nil, fmt.Errorf("not an mjpeg stream: content type %q", resp.Header.Get("Content-Type"))
	}

	return &MJPEGDevice{
		resp:   resp,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
	}, nil
}

func (d *MJPEGDevice) Read() (image.Image, error) {
	part, err := d.reader.NextPart()
	if err != nil {
		return nil, fmt.Errorf("read mjpeg part: %w", err)
	}
	defer part.Close()

	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("decode mjpeg frame: %w", err)
	}
	return img, nil
}

func (d *MJPEGDevice) Close() error {
	return d.resp.Body.Close()
}
