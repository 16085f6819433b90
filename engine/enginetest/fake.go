// Package enginetest provides a scripted in-memory engine.Engine for tests.
//
// The fake never does any matching. It records every call, hands out canned
// replies and counts how many result buffers were produced and released, so
// tests can assert the client's buffer discipline.
package enginetest

import (
	"context"
	"sync"

	"github.com/kacy/cryptonet/engine"
)

// DefaultReply is returned for operations without a scripted reply.
const DefaultReply = `{"status":0}`

// Reply scripts the outcome of one operation.
type Reply struct {
	// Text is the result text. Ignored when NoText is set.
	Text string

	// NoText leaves the out-pointer empty.
	NoText bool

	// Status is the engine status code.
	Status int32

	// Err makes the call fail before any output is produced.
	Err error
}

// Call records the inputs of one operation.
type Call struct {
	Op         engine.Op
	Handle     engine.Handle
	Config     []byte
	Frames     []engine.Frame
	Embeddings [][]byte
	PUID       string
}

// Fake is a scripted engine.Engine. The zero value is not usable; use New.
type Fake struct {
	mu sync.Mutex

	version  string
	failInit bool
	replies  map[engine.Op]Reply

	next     engine.Handle
	sessions map[engine.Handle]bool

	calls     []Call
	deinits   int
	outputs   int
	released  int
	doubleRel int
}

// New creates a fake engine reporting the given version.
func New(version string) *Fake {
	return &Fake{
		version:  version,
		replies:  make(map[engine.Op]Reply),
		sessions: make(map[engine.Handle]bool),
		next:     1,
	}
}

// SetReply scripts the reply for op.
func (f *Fake) SetReply(op engine.Op, r Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[op] = r
}

// FailInitialize makes InitializeSession fail.
func (f *Fake) FailInitialize(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failInit = fail
}

// Version returns the configured version.
func (f *Fake) Version() string {
	return f.version
}

// InitializeSession opens a fake session.
func (f *Fake) InitializeSession(ctx context.Context, settings []byte) (engine.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: engine.OpInitializeSession, Config: clone(settings)})
	if f.failInit {
		return 0, engine.ErrSessionFailed
	}

	h := f.next
	f.next++
	f.sessions[h] = true
	return h, nil
}

// DeinitializeSession closes a fake session.
func (f *Fake) DeinitializeSession(ctx context.Context, h engine.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: engine.OpDeinitializeSession, Handle: h})
	if !f.sessions[h] {
		return engine.ErrInvalidHandle
	}
	delete(f.sessions, h)
	f.deinits++
	return nil
}

// Enroll records the call and returns the scripted reply.
func (f *Fake) Enroll(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return f.respond(Call{Op: engine.OpEnroll, Handle: h, Config: clone(config), Frames: []engine.Frame{img}})
}

// Predict records the call and returns the scripted reply.
func (f *Fake) Predict(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return f.respond(Call{Op: engine.OpPredict, Handle: h, Config: clone(config), Frames: []engine.Frame{img}})
}

// Validate records the call and returns the scripted reply.
func (f *Fake) Validate(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return f.respond(Call{Op: engine.OpValidate, Handle: h, Config: clone(config), Frames: []engine.Frame{img}})
}

// Delete records the call and returns the scripted reply.
func (f *Fake) Delete(ctx context.Context, h engine.Handle, config []byte, puid []byte) (engine.Output, error) {
	return f.respond(Call{Op: engine.OpDelete, Handle: h, Config: clone(config), PUID: string(puid)})
}

// CompareEmbeddings records the call and returns the scripted reply.
func (f *Fake) CompareEmbeddings(ctx context.Context, h engine.Handle, config []byte, a, b []byte) (engine.Output, error) {
	return f.respond(Call{
		Op:         engine.OpCompareEmbeddings,
		Handle:     h,
		Config:     clone(config),
		Embeddings: [][]byte{clone(a), clone(b)},
	})
}

// CompareFaceAndEmbedding records the call and returns the scripted reply.
func (f *Fake) CompareFaceAndEmbedding(ctx context.Context, h engine.Handle, config []byte, selfie engine.Frame, embedding []byte) (engine.Output, error) {
	return f.respond(Call{
		Op:         engine.OpCompareFaceAndEmbedding,
		Handle:     h,
		Config:     clone(config),
		Frames:     []engine.Frame{selfie},
		Embeddings: [][]byte{clone(embedding)},
	})
}

// CompareDocumentAndFace records the call and returns the scripted reply.
func (f *Fake) CompareDocumentAndFace(ctx context.Context, h engine.Handle, config []byte, document, selfie engine.Frame) (engine.Output, error) {
	return f.respond(Call{
		Op:     engine.OpCompareDocumentAndFace,
		Handle: h,
		Config: clone(config),
		Frames: []engine.Frame{document, selfie},
	})
}

func (f *Fake) respond(call Call) (engine.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)

	if !f.sessions[call.Handle] {
		return nil, engine.ErrInvalidHandle
	}

	reply, ok := f.replies[call.Op]
	if !ok {
		reply = Reply{Text: DefaultReply}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	f.outputs++
	return &output{fake: f, reply: reply}, nil
}

// Calls returns every recorded call in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsFor returns the recorded calls for op.
func (f *Fake) CallsFor(op engine.Op) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Outputs returns how many result buffers were handed out.
func (f *Fake) Outputs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs
}

// Released returns how many result buffers were released.
func (f *Fake) Released() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// DoubleReleases returns how many Release calls hit an already released buffer.
func (f *Fake) DoubleReleases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubleRel
}

// OpenSessions returns the number of sessions not yet deinitialized.
func (f *Fake) OpenSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// Deinits returns the number of successful DeinitializeSession calls.
func (f *Fake) Deinits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deinits
}

type output struct {
	fake     *Fake
	reply    Reply
	released bool
}

func (o *output) Text() (string, bool) {
	if o.reply.NoText {
		return "", false
	}
	return o.reply.Text, true
}

func (o *output) Status() int32 {
	return o.reply.Status
}

// Release counts a second call on the same output as a double release.
func (o *output) Release() {
	o.fake.mu.Lock()
	defer o.fake.mu.Unlock()

	if o.released {
		o.fake.doubleRel++
		return
	}
	o.released = true
	o.fake.released++
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

var _ engine.Engine = (*Fake)(nil)
