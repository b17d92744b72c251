package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// MaxWidth and MaxHeight bound frames before they are handed to the detector.
	MaxWidth  = 640
	MaxHeight = 480

	// DefaultJPEGQuality matches the compression used on the broadcast path.
	DefaultJPEGQuality = 70
)

// EncodeJPEG compresses an image at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns the base64 text form of a JPEG-compressed image,
// which is what goes on the wire in frame and probe payloads.
func EncodeBase64(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Downscale resizes img to maxW×maxH when it exceeds those bounds.
// Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxW, maxH))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// boxColor is drawn for detection borders and labels.
var boxColor = color.RGBA{G: 255, A: 255}

const boxBorder = 2

// Annotation is one labeled detection box to render onto a frame.
// Box holds pixel coordinates as x1, y1, x2, y2.
type Annotation struct {
	Label string
	Box   [4]float64
}

// Annotate draws labeled boxes onto a copy of img, the way viewers expect
// detections marked on the live stream. Annotations without a usable box
// are skipped; with nothing to draw, img comes back untouched.
func Annotate(img image.Image, anns []Annotation) image.Image {
	drawable := false
	for _, a := range anns {
		if !boxRect(a.Box).Empty() {
			drawable = true
			break
		}
	}
	if !drawable {
		return img
	}

	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)

	for _, a := range anns {
		r := boxRect(a.Box).Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}
		drawBorder(dst, r)
		drawLabel(dst, a.Label, r)
	}
	return dst
}

func boxRect(box [4]float64) image.Rectangle {
	return image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3]))
}

func drawBorder(dst *image.RGBA, r image.Rectangle) {
	for t := 0; t < boxBorder && t*2 < r.Dy(); t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetRGBA(x, r.Min.Y+t, boxColor)
			dst.SetRGBA(x, r.Max.Y-1-t, boxColor)
		}
	}
	for t := 0; t < boxBorder && t*2 < r.Dx(); t++ {
		for y := r.Min.Y; y < r.Max.Y; y++ {
			dst.SetRGBA(r.Min.X+t, y, boxColor)
			dst.SetRGBA(r.Max.X-1-t, y, boxColor)
		}
	}
}

func drawLabel(dst *image.RGBA, label string, r image.Rectangle) {
	if label == "" {
		return
	}
	y := r.Min.Y - 4
	if y < dst.Bounds().Min.Y+basicfont.Face7x13.Ascent {
		y = r.Min.Y + basicfont.Face7x13.Ascent + boxBorder + 1
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(boxColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(r.Min.X, y),
	}
	d.DrawString(label)
}

// ProbeImage generates the test card served by the connectivity probe.
// It goes through the same encode path as live frames.
func ProbeImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{G: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(50, 100),
	}
	d.DrawString("Connection OK")
	return img
}

// TestPattern renders a synthetic camera frame: a green field with a band
// that moves with seq, so consecutive frames are visibly distinct.
func TestPattern(w, h int, seq uint64) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	band := int(seq % uint64(h))
	for y := 0; y < h; y++ {
		c := color.RGBA{R: 20, G: 120, B: 40, A: 255}
		if y >= band && y < band+8 {
			c = color.RGBA{R: 220, G: 220, B: 80, A: 255}
		}
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
