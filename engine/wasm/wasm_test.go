package wasm

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacy/cryptonet/engine"
)

// emptyModule is the smallest valid WebAssembly binary: magic and version.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestOpen_InvalidBinary(t *testing.T) {
	_, err := Open(context.Background(), []byte("not a wasm module"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile")
}

func TestOpen_MissingExports(t *testing.T) {
	_, err := Open(context.Background(), emptyModule)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingExport)
	assert.Contains(t, err.Error(), fnMalloc)
}

func TestOpenFile_NotFound(t *testing.T) {
	_, err := OpenFile(context.Background(), "/nonexistent/privid.wasm")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestEngine_RealModule runs against a real engine build when one is
// available through CRYPTONET_ENGINE_WASM.
func TestEngine_RealModule(t *testing.T) {
	path := os.Getenv("CRYPTONET_ENGINE_WASM")
	if path == "" {
		t.Skip("CRYPTONET_ENGINE_WASM not set")
	}

	ctx := context.Background()
	e, err := OpenFile(ctx, path)
	require.NoError(t, err)
	defer e.Close(ctx)

	assert.NotEmpty(t, e.Version())

	settings := os.Getenv("CRYPTONET_ENGINE_SETTINGS")
	if settings == "" {
		t.Skip("CRYPTONET_ENGINE_SETTINGS not set")
	}

	h, err := e.InitializeSession(ctx, []byte(settings))
	require.NoError(t, err)
	defer e.DeinitializeSession(ctx, h)

	out, err := e.CompareEmbeddings(ctx, h, engine.EmptyConfig, []byte{}, []byte{})
	require.NoError(t, err)
	defer out.Release()
}

func TestEngine_RejectsZeroHandle(t *testing.T) {
	e := &Engine{}

	_, err := e.Enroll(context.Background(), 0, engine.EmptyConfig, engine.Frame{
		Pix:    make([]byte, 4),
		Width:  1,
		Height: 1,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidHandle)

	err = e.DeinitializeSession(context.Background(), 0)
	assert.ErrorIs(t, err, engine.ErrInvalidHandle)
}

func TestEngine_RejectsInvalidFrame(t *testing.T) {
	e := &Engine{}

	_, err := e.Predict(context.Background(), 1, engine.EmptyConfig, engine.Frame{Width: 2, Height: 2})
	assert.ErrorIs(t, err, engine.ErrInvalidFrame)

	_, err = e.CompareDocumentAndFace(context.Background(), 1, engine.EmptyConfig,
		engine.Frame{Pix: make([]byte, 4), Width: 1, Height: 1},
		engine.Frame{Width: 1, Height: 1})
	assert.ErrorIs(t, err, engine.ErrInvalidFrame)
}
