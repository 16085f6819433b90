package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCanonicalize_Dimensions(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{name: "square smaller", w: 10, h: 10},
		{name: "square larger", w: 1200, h: 1200},
		{name: "landscape", w: 640, h: 480},
		{name: "portrait", w: 3, h: 2000},
		{name: "already canonical", w: CanonicalSize, h: CanonicalSize},
		{name: "single pixel", w: 1, h: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Canonicalize(solid(tt.w, tt.h, color.RGBA{R: 10, G: 20, B: 30, A: 255}), CanonicalSize)
			require.NoError(t, err)
			assert.Equal(t, CanonicalSize, frame.Width)
			assert.Equal(t, CanonicalSize, frame.Height)
			assert.Len(t, frame.Pix, CanonicalSize*CanonicalSize*4)
			assert.NoError(t, frame.Validate())
		})
	}
}

func TestCanonicalize_ByteOrder(t *testing.T) {
	frame, err := Canonicalize(solid(4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255}), 2)
	require.NoError(t, err)

	for i := 0; i < len(frame.Pix); i += 4 {
		assert.Equal(t, []byte{200, 100, 50, 255}, frame.Pix[i:i+4])
	}
}

func TestCanonicalize_AlphaSlotOpaque(t *testing.T) {
	frame, err := Canonicalize(solid(4, 4, color.RGBA{}), 4)
	require.NoError(t, err)

	for i := 3; i < len(frame.Pix); i += 4 {
		assert.Equal(t, byte(0xff), frame.Pix[i])
	}
	// Transparent pixels land on black
	assert.Equal(t, []byte{0, 0, 0, 0xff}, frame.Pix[:4])
}

func TestCanonicalize_Deterministic(t *testing.T) {
	img := solid(37, 91, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.Set(5, 5, color.RGBA{R: 255, A: 255})

	a, err := Canonicalize(img, 64)
	require.NoError(t, err)
	b, err := Canonicalize(img, 64)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestCanonicalize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		img     image.Image
		size    int
		wantErr error
	}{
		{name: "nil image", img: nil, size: CanonicalSize, wantErr: ErrEmptyImage},
		{name: "typed nil rgba", img: (*image.RGBA)(nil), size: CanonicalSize, wantErr: ErrEmptyImage},
		{name: "typed nil gray", img: (*image.Gray)(nil), size: CanonicalSize, wantErr: ErrEmptyImage},
		{name: "empty bounds", img: image.NewRGBA(image.Rectangle{}), size: CanonicalSize, wantErr: ErrEmptyImage},
		{name: "zero size", img: solid(2, 2, color.Black), size: 0, wantErr: ErrInvalidSize},
		{name: "negative size", img: solid(2, 2, color.Black), size: -5, wantErr: ErrInvalidSize},
		{name: "overflowing size", img: solid(2, 2, color.Black), size: 1 << 20, wantErr: ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.img, tt.size)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestToRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}

	frame, err := ToRGBA(gray)
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Width)
	assert.Equal(t, 2, frame.Height)
	assert.Len(t, frame.Pix, 3*2*4)
	assert.Equal(t, []byte{128, 128, 128, 255}, frame.Pix[:4])

	_, err = ToRGBA(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = ToRGBA((*image.NRGBA)(nil))
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestToRGBA_OffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 12, 12))
	img.Set(10, 10, color.RGBA{R: 9, G: 8, B: 7, A: 255})

	frame, err := ToRGBA(img)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7, 255}, frame.Pix[:4])
}

func TestDecodeBytes(t *testing.T) {
	src := solid(5, 7, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	t.Run("png", func(t *testing.T) {
		img, err := DecodeBytes(encodePNG(t, src))
		require.NoError(t, err)
		assert.Equal(t, src.Bounds(), img.Bounds())
	})

	t.Run("jpeg", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, src, nil))
		img, err := DecodeBytes(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, src.Bounds(), img.Bounds())
	})

	t.Run("netpbm", func(t *testing.T) {
		ppm := []byte("P6\n2 1\n255\n\xff\x00\x00\x00\xff\x00")
		img, _, err := Decode(bytes.NewReader(ppm))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeBytes(nil)
		assert.ErrorIs(t, err, ErrEmptyImage)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeBytes([]byte("definitely not an image"))
		assert.Error(t, err)
	})
}

func TestDecodeDataURL(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(encodePNG(t, solid(3, 3, color.White)))

	tests := []struct {
		name    string
		input   string
		wantErr error
		anyErr  bool
	}{
		{name: "bare base64", input: encoded},
		{name: "png data URL", input: "data:image/png;base64," + encoded},
		{name: "jpeg label on png payload", input: "data:image/jpeg;base64," + encoded},
		{name: "missing comma", input: "data:image/png;base64", wantErr: ErrInvalidDataURL},
		{name: "non-image mime", input: "data:text/plain;base64," + encoded, wantErr: ErrUnsupportedType},
		{name: "not base64 encoded", input: "data:image/png," + encoded, wantErr: ErrUnsupportedType},
		{name: "bad base64", input: "!!!", anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeDataURL(tt.input)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, image.Rect(0, 0, 3, 3), img.Bounds())
			}
		})
	}
}

func TestFrameImage(t *testing.T) {
	frame, err := Canonicalize(solid(2, 2, color.RGBA{R: 7, A: 255}), 3)
	require.NoError(t, err)

	img, err := FrameImage(frame)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 3), img.Bounds())
	assert.Equal(t, color.RGBA{R: 7, A: 255}, img.RGBAAt(1, 1))

	frame.Pix = frame.Pix[:5]
	_, err = FrameImage(frame)
	assert.Error(t, err)
}
