// Package capture turns the live camera surface into still PNG frames.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"golang.org/x/image/draw"
)

// MIMEPNG is the MIME type of every captured frame.
const MIMEPNG = "image/png"

// ErrInvalidDataURL is returned by ParseDataURL for anything that is not a base64 image data URL.
var ErrInvalidDataURL = errors.New("invalid image data URL")

// Source is a live surface frames can be taken from. *camera.Manager implements it.
type Source interface {
	IsActive() bool
	Snapshot() (image.Image, error)
}

// Frame is one encoded still image. It is immutable; accessors return copies.
type Frame struct {
	id         string
	data       []byte
	mime       string
	width      int
	height     int
	capturedAt time.Time
}

// NewFrame wraps already encoded image bytes.
func NewFrame(data []byte, mime string, width, height int) *Frame {
	return &Frame{
		id:         uuid.NewString(),
		data:       bytes.Clone(data),
		mime:       mime,
		width:      width,
		height:     height,
		capturedAt: time.Now(),
	}
}

func (f *Frame) ID() string            { return f.id }
func (f *Frame) MIME() string          { return f.mime }
func (f *Frame) Width() int            { return f.width }
func (f *Frame) Height() int           { return f.height }
func (f *Frame) CapturedAt() time.Time { return f.capturedAt }
func (f *Frame) Size() int             { return len(f.data) }

// Bytes returns a copy of the encoded image.
func (f *Frame) Bytes() []byte {
	return bytes.Clone(f.data)
}

// DataURL encodes the frame as a data URL, the format the upload endpoint expects.
func (f *Frame) DataURL() string {
	return "data:" + f.mime + ";base64," + base64.StdEncoding.EncodeToString(f.data)
}

// Capture renders exactly one frame of the active surface into an offscreen raster of the
// same dimensions and encodes it as PNG. It does not touch the session.
func Capture(src Source) (*Frame, error) {
	if !src.IsActive() {
		return nil, camera.ErrSessionInactive
	}

	img, err := src.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("reading surface: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: surface has no pixels", camera.ErrSessionInactive)
	}

	raster := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(raster, raster.Bounds(), img, bounds.Min, draw.Src)

	return encodePNG(raster)
}

// Downscale returns a copy of the frame that fits within maxDim on both sides, keeping the
// aspect ratio. Frames already small enough are returned unchanged.
func Downscale(f *Frame, maxDim int) (*Frame, error) {
	if maxDim <= 0 || (f.width <= maxDim && f.height <= maxDim) {
		return f, nil
	}

	img, _, err := image.Decode(bytes.NewReader(f.data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	var newWidth, newHeight int
	if f.width > f.height {
		newWidth = maxDim
		newHeight = max(1, f.height*maxDim/f.width)
	} else {
		newHeight = maxDim
		newWidth = max(1, f.width*maxDim/f.height)
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	out, err := encodePNG(resized)
	if err != nil {
		return nil, err
	}
	out.capturedAt = f.capturedAt
	return out, nil
}

// ParseDataURL decodes a base64 image data URL into a frame.
func ParseDataURL(s string) (*Frame, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, ErrInvalidDataURL
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return NewFrame(data, mime, cfg.Width, cfg.Height), nil
}

// FromBytes wraps an encoded image file, e.g. a reference photo read from disk.
func FromBytes(data []byte) (*Frame, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported image: %w", err)
	}
	return NewFrame(data, "image/"+format, cfg.Width, cfg.Height), nil
}

// Decode returns the frame's pixels.
func (f *Frame) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

func encodePNG(img *image.RGBA) (*Frame, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	b := img.Bounds()
	return &Frame{
		id:         uuid.NewString(),
		data:       buf.Bytes(),
		mime:       MIMEPNG,
		width:      b.Dx(),
		height:     b.Dy(),
		capturedAt: time.Now(),
	}, nil
}
