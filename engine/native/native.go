//go:build cgo && privid

// Package native binds the prebuilt privid_fhe library through cgo.
//
// Building requires the library and its pkg-config file:
//
//	PKG_CONFIG_PATH=/path/to/privid_fhe/lib/pkgconfig go build -tags privid
//
// Without the privid build tag the package compiles to a stub whose Open
// returns ErrUnavailable.
package native

/*
#cgo pkg-config: privid_fhe
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
#include <privid_fhe.h>
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/kacy/cryptonet/engine"
)

// Engine is an engine.Engine calling the native library directly.
type Engine struct{}

// Open returns the native engine.
func Open() (*Engine, error) {
	return &Engine{}, nil
}

// Close is a no-op; the native library has no global teardown.
func (e *Engine) Close(ctx context.Context) error {
	return nil
}

// Version returns the library version.
func (e *Engine) Version() string {
	v := C.privid_get_version()
	if v == nil {
		return ""
	}
	return C.GoString(v)
}

// InitializeSession opens a native session.
func (e *Engine) InitializeSession(ctx context.Context, settings []byte) (engine.Handle, error) {
	cSettings := C.CString(string(settings))
	defer C.free(unsafe.Pointer(cSettings))

	var session unsafe.Pointer
	ok := C.privid_initialize_session(cSettings, C.uint(len(settings)), &session)
	if !bool(ok) || session == nil {
		return 0, engine.ErrSessionFailed
	}
	return engine.Handle(uintptr(session)), nil
}

// DeinitializeSession releases a native session.
func (e *Engine) DeinitializeSession(ctx context.Context, h engine.Handle) error {
	if h == 0 {
		return engine.ErrInvalidHandle
	}
	C.privid_deinitialize_session(sessionPtr(h))
	return nil
}

// Enroll runs privid_user_enroll.
func (e *Engine) Enroll(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return frameCall(h, config, img, func(s unsafe.Pointer, cfg *C.char, cfgLen C.int, pix *C.uint8_t, w, hgt C.int, out **C.char, outLen *C.int) C.int {
		return C.privid_user_enroll(s, cfg, cfgLen, pix, w, hgt, out, outLen)
	})
}

// Predict runs privid_user_predict.
func (e *Engine) Predict(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return frameCall(h, config, img, func(s unsafe.Pointer, cfg *C.char, cfgLen C.int, pix *C.uint8_t, w, hgt C.int, out **C.char, outLen *C.int) C.int {
		return C.privid_user_predict(s, cfg, cfgLen, pix, w, hgt, out, outLen)
	})
}

// Validate runs privid_validate_face.
func (e *Engine) Validate(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return frameCall(h, config, img, func(s unsafe.Pointer, cfg *C.char, cfgLen C.int, pix *C.uint8_t, w, hgt C.int, out **C.char, outLen *C.int) C.int {
		return C.privid_validate_face(s, cfg, cfgLen, pix, w, hgt, out, outLen)
	})
}

// Delete runs privid_user_delete.
func (e *Engine) Delete(ctx context.Context, h engine.Handle, config []byte, puid []byte) (engine.Output, error) {
	if h == 0 {
		return nil, engine.ErrInvalidHandle
	}
	cfg := C.CString(string(config))
	defer C.free(unsafe.Pointer(cfg))
	cPUID := C.CString(string(puid))
	defer C.free(unsafe.Pointer(cPUID))

	var out *C.char
	var outLen C.int
	rc := C.privid_user_delete(sessionPtr(h), cfg, C.int(len(config)),
		cPUID, C.int(len(puid)), &out, &outLen)
	return newOutput(out, outLen, rc), nil
}

// CompareEmbeddings runs privid_compare_embeddings.
func (e *Engine) CompareEmbeddings(ctx context.Context, h engine.Handle, config []byte, a, b []byte) (engine.Output, error) {
	if h == 0 {
		return nil, engine.ErrInvalidHandle
	}
	cfg := C.CString(string(config))
	defer C.free(unsafe.Pointer(cfg))
	cA := cBytes(a)
	defer C.free(unsafe.Pointer(cA))
	cB := cBytes(b)
	defer C.free(unsafe.Pointer(cB))

	var out *C.char
	var outLen C.int
	rc := C.privid_compare_embeddings(sessionPtr(h), cfg, C.int(len(config)),
		cA, C.int(len(a)), cB, C.int(len(b)), &out, &outLen)
	return newOutput(out, outLen, rc), nil
}

// CompareFaceAndEmbedding runs privid_compare_face_and_embedding.
func (e *Engine) CompareFaceAndEmbedding(ctx context.Context, h engine.Handle, config []byte, selfie engine.Frame, embedding []byte) (engine.Output, error) {
	if h == 0 {
		return nil, engine.ErrInvalidHandle
	}
	if err := selfie.Validate(); err != nil {
		return nil, err
	}
	cfg := C.CString(string(config))
	defer C.free(unsafe.Pointer(cfg))
	pix := cBytes(selfie.Pix)
	defer C.free(unsafe.Pointer(pix))
	emb := cBytes(embedding)
	defer C.free(unsafe.Pointer(emb))

	var out *C.char
	var outLen C.int
	rc := C.privid_compare_face_and_embedding(sessionPtr(h), cfg, C.int(len(config)),
		pix, C.int(selfie.Width), C.int(selfie.Height),
		emb, C.int(len(embedding)), &out, &outLen)
	return newOutput(out, outLen, rc), nil
}

// CompareDocumentAndFace runs privid_compare_mugshot_and_face.
func (e *Engine) CompareDocumentAndFace(ctx context.Context, h engine.Handle, config []byte, document, selfie engine.Frame) (engine.Output, error) {
	if h == 0 {
		return nil, engine.ErrInvalidHandle
	}
	if err := document.Validate(); err != nil {
		return nil, err
	}
	if err := selfie.Validate(); err != nil {
		return nil, err
	}
	cfg := C.CString(string(config))
	defer C.free(unsafe.Pointer(cfg))
	docPix := cBytes(document.Pix)
	defer C.free(unsafe.Pointer(docPix))
	selfiePix := cBytes(selfie.Pix)
	defer C.free(unsafe.Pointer(selfiePix))

	var out *C.char
	var outLen C.int
	rc := C.privid_compare_mugshot_and_face(sessionPtr(h), cfg, C.int(len(config)),
		docPix, C.int(document.Width), C.int(document.Height),
		selfiePix, C.int(selfie.Width), C.int(selfie.Height),
		&out, &outLen)
	return newOutput(out, outLen, rc), nil
}

type frameFunc func(s unsafe.Pointer, cfg *C.char, cfgLen C.int, pix *C.uint8_t, w, h C.int, out **C.char, outLen *C.int) C.int

func frameCall(h engine.Handle, config []byte, img engine.Frame, fn frameFunc) (engine.Output, error) {
	if h == 0 {
		return nil, engine.ErrInvalidHandle
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	cfg := C.CString(string(config))
	defer C.free(unsafe.Pointer(cfg))
	pix := cBytes(img.Pix)
	defer C.free(unsafe.Pointer(pix))

	var out *C.char
	var outLen C.int
	rc := fn(sessionPtr(h), cfg, C.int(len(config)), pix, C.int(img.Width), C.int(img.Height), &out, &outLen)
	return newOutput(out, outLen, rc), nil
}

// newOutput copies the result out of the engine buffer. The buffer itself is
// freed with privid_free_char_buffer when the Output is released.
func newOutput(out *C.char, outLen C.int, rc C.int) engine.Output {
	if out == nil {
		return engine.NewBufferOutput("", false, int32(rc), nil)
	}
	var text string
	if outLen > 0 {
		text = engine.BufferText(C.GoBytes(unsafe.Pointer(out), outLen))
	} else {
		text = C.GoString(out)
	}
	return engine.NewBufferOutput(text, true, int32(rc), func() {
		C.privid_free_char_buffer(out)
	})
}

// cBytes copies b into C memory. It never returns nil so empty inputs still
// hand the engine a valid pointer.
func cBytes(b []byte) *C.uint8_t {
	if len(b) == 0 {
		return (*C.uint8_t)(C.malloc(1))
	}
	return (*C.uint8_t)(C.CBytes(b))
}

func sessionPtr(h engine.Handle) unsafe.Pointer {
	return unsafe.Pointer(uintptr(h))
}

var _ engine.Engine = (*Engine)(nil)
