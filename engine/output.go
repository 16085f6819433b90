package engine

import (
	"bytes"
	"sync"
)

// BufferOutput is an Output over text already copied out of the engine.
// The free function, if any, runs on the first Release only.
type BufferOutput struct {
	text   string
	ok     bool
	status int32

	once sync.Once
	free func()
}

// NewBufferOutput returns an Output carrying text. Pass ok=false when the
// engine produced no result buffer.
func NewBufferOutput(text string, ok bool, status int32, free func()) *BufferOutput {
	return &BufferOutput{text: text, ok: ok, status: status, free: free}
}

// Text returns the result text.
func (o *BufferOutput) Text() (string, bool) {
	return o.text, o.ok
}

// Status returns the engine status code.
func (o *BufferOutput) Status() int32 {
	return o.status
}

// Release runs the free function once.
func (o *BufferOutput) Release() {
	o.once.Do(func() {
		if o.free != nil {
			o.free()
		}
	})
}

// BufferText returns the text of a result buffer up to its first NUL. Engine
// lengths sometimes count the terminator; both bindings read the buffer the
// same way through this.
func BufferText(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
