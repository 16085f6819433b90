// Package imaging turns encoded or decoded images into the raw RGBA frames
// the engine consumes.
//
// Every image handed to the engine is first resized to a square canonical
// resolution (CanonicalSize by default). The resize does not preserve aspect
// ratio; that is part of the engine's input contract.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"reflect"
	"strings"

	_ "github.com/spakin/netpbm"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kacy/cryptonet/engine"
)

// CanonicalSize is the working resolution of the engine, in pixels per side.
const CanonicalSize = 1000

// BytesPerPixel is the size of one RGBA8 pixel.
const BytesPerPixel = 4

// Errors returned by the codec.
var (
	ErrEmptyImage      = errors.New("image is empty")
	ErrInvalidSize     = errors.New("invalid target size")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrInvalidDataURL  = errors.New("invalid data URL")
)

// Decode decodes any registered image format: png, jpeg, gif, bmp, tiff,
// webp and the netpbm family.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := Decode(bytes.NewReader(data))
	return img, err
}

// DecodeDataURL decodes a base64 image, with or without a
// "data:image/...;base64," prefix.
func DecodeDataURL(s string) (image.Image, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return nil, ErrInvalidDataURL
		}
		meta := parts[0]
		if !strings.HasPrefix(meta, "data:image/") || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, strings.TrimPrefix(meta, "data:"))
		}
		payload = parts[1]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return DecodeBytes(data)
}

// Canonicalize resizes img to size x size and converts it to an RGBA frame.
func Canonicalize(img image.Image, size int) (engine.Frame, error) {
	if err := checkSize(size, size); err != nil {
		return engine.Frame{}, err
	}
	if isEmpty(img) {
		return engine.Frame{}, ErrEmptyImage
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return frameFrom(dst), nil
}

// ToRGBA converts img to an RGBA frame at its own dimensions.
func ToRGBA(img image.Image) (engine.Frame, error) {
	if isEmpty(img) {
		return engine.Frame{}, ErrEmptyImage
	}
	b := img.Bounds()
	if err := checkSize(b.Dx(), b.Dy()); err != nil {
		return engine.Frame{}, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return frameFrom(dst), nil
}

// FrameImage wraps a frame as an image.Image without copying.
func FrameImage(f engine.Frame) (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * BytesPerPixel,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

// frameFrom forces the alpha slot to opaque. The engine ignores alpha, and
// premultiplied colour over an opaque slot is the image composited on black.
func frameFrom(dst *image.RGBA) engine.Frame {
	for i := 3; i < len(dst.Pix); i += BytesPerPixel {
		dst.Pix[i] = 0xff
	}
	return engine.Frame{
		Pix:    dst.Pix,
		Width:  dst.Rect.Dx(),
		Height: dst.Rect.Dy(),
	}
}

func checkSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	if w > math.MaxInt32/BytesPerPixel/h {
		return fmt.Errorf("%w: %dx%d overflows the frame buffer", ErrInvalidSize, w, h)
	}
	return nil
}

// isEmpty also catches a typed nil, such as a nil *image.RGBA, whose Bounds
// would dereference nil.
func isEmpty(img image.Image) bool {
	if img == nil {
		return true
	}
	switch v := reflect.ValueOf(img); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return true
		}
	}
	return img.Bounds().Empty()
}
