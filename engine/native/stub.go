//go:build !cgo || !privid

// Package native binds the prebuilt privid_fhe library through cgo.
//
// This build was compiled without cgo or without the privid build tag, so
// the library is not linked and Open always fails.
package native

import (
	"context"

	"github.com/kacy/cryptonet/engine"
)

// Engine is unavailable in this build.
type Engine struct {
	engine.Engine
}

// Open always returns ErrUnavailable.
func Open() (*Engine, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	return nil
}
