// Package engine defines the contract between the session client and the
// prebuilt biometric matching engine.
//
// The engine itself is closed and precompiled. Implementations of Engine bind
// to it (see the native and wasm subpackages) and own every buffer that has to
// cross the boundary for a single call. The only thing an implementation hands
// back to the caller is an Output, which the caller must Release exactly once.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Op names an engine operation. It is used in errors, logs and metrics.
type Op string

// Engine operations.
const (
	OpInitializeSession       Op = "initialize_session"
	OpDeinitializeSession     Op = "deinitialize_session"
	OpEnroll                  Op = "enroll"
	OpPredict                 Op = "predict"
	OpValidate                Op = "validate"
	OpDelete                  Op = "delete"
	OpCompareEmbeddings       Op = "compare_embeddings"
	OpCompareFaceAndEmbedding Op = "compare_face_and_embedding"
	OpCompareDocumentAndFace  Op = "compare_document_and_face"
)

// EmptyConfig is the configuration sent with operations that take no options.
var EmptyConfig = []byte("{}")

// Common errors returned by engine implementations.
var (
	ErrInvalidHandle = errors.New("invalid session handle")
	ErrInvalidFrame  = errors.New("invalid frame")
	ErrSessionFailed = errors.New("engine could not open a session")
)

// Handle is an opaque reference to engine-held session state.
// The zero Handle never refers to a live session.
type Handle uintptr

// Frame is a raw RGBA8 raster: Width*Height pixels, four bytes each, in
// R, G, B, A order.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// Validate reports whether the frame's buffer matches its dimensions.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	if want := f.Width * f.Height * 4; len(f.Pix) != want {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrInvalidFrame, len(f.Pix), want)
	}
	return nil
}

// Output is a result buffer handed back by the engine for one call.
//
// Ownership transfers to the caller, who must call Release exactly once,
// whether or not Text produced anything.
type Output interface {
	// Text returns the decoded result. ok is false when the engine left the
	// out-pointer empty.
	Text() (text string, ok bool)

	// Status is the raw status code returned by the engine call.
	Status() int32

	// Release frees the engine-allocated buffer.
	Release()
}

// Engine is the set of calls the prebuilt library exposes.
//
// Engine implementations are not required to be safe for concurrent use on a
// single session Handle. When an operation returns a non-nil error, the
// returned Output is nil and every buffer allocated for the call has already
// been released.
type Engine interface {
	// Version returns the engine library version.
	Version() string

	// InitializeSession opens a session from a JSON settings blob.
	InitializeSession(ctx context.Context, settings []byte) (Handle, error)

	// DeinitializeSession releases the engine session.
	DeinitializeSession(ctx context.Context, h Handle) error

	Enroll(ctx context.Context, h Handle, config []byte, img Frame) (Output, error)
	Predict(ctx context.Context, h Handle, config []byte, img Frame) (Output, error)
	Validate(ctx context.Context, h Handle, config []byte, img Frame) (Output, error)
	Delete(ctx context.Context, h Handle, config []byte, puid []byte) (Output, error)

	CompareEmbeddings(ctx context.Context, h Handle, config []byte, a, b []byte) (Output, error)
	CompareFaceAndEmbedding(ctx context.Context, h Handle, config []byte, selfie Frame, embedding []byte) (Output, error)
	CompareDocumentAndFace(ctx context.Context, h Handle, config []byte, document, selfie Frame) (Output, error)
}
