// Package wasm hosts a WebAssembly build of the matching engine with wazero.
//
// The module must be a WASI reactor exporting the engine's C ABI
// (privid_get_version, privid_initialize_session, privid_user_enroll, ...)
// together with malloc and free. Every argument buffer is allocated in guest
// memory for the duration of one call and freed before the call returns; the
// result buffer is kept until the caller releases the Output.
package wasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/kacy/cryptonet/engine"
)

// ModuleName is the name the engine module is instantiated under.
const ModuleName = "privid-fhe"

// Errors returned while loading a module.
var (
	ErrMissingExport = errors.New("module missing required export")
	ErrGuestMemory   = errors.New("guest memory access out of range")
	ErrGuestAlloc    = errors.New("guest malloc returned null")
)

// Exported function names of the engine ABI.
const (
	fnMalloc              = "malloc"
	fnFree                = "free"
	fnVersion             = "privid_get_version"
	fnInitializeSession   = "privid_initialize_session"
	fnDeinitializeSession = "privid_deinitialize_session"
	fnEnroll              = "privid_user_enroll"
	fnPredict             = "privid_user_predict"
	fnValidate            = "privid_validate_face"
	fnDelete              = "privid_user_delete"
	fnCompareEmbeddings   = "privid_compare_embeddings"
	fnCompareFaceEmb      = "privid_compare_face_and_embedding"
	fnCompareDocFace      = "privid_compare_mugshot_and_face"
	fnFreeBuffer          = "privid_free_char_buffer"
)

var requiredExports = []string{
	fnMalloc, fnFree, fnVersion, fnInitializeSession, fnDeinitializeSession,
	fnEnroll, fnPredict, fnValidate, fnDelete,
	fnCompareEmbeddings, fnCompareFaceEmb, fnCompareDocFace, fnFreeBuffer,
}

// Engine is an engine.Engine backed by a wazero module instance.
//
// Calls are serialized: the guest allocator is shared by every call.
type Engine struct {
	runtime wazero.Runtime
	module  api.Module
	fns     map[string]api.Function
	version string

	mu sync.Mutex
}

// OpenFile reads a module from disk and opens it.
func OpenFile(ctx context.Context, path string) (*Engine, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine module: %w", err)
	}
	return Open(ctx, wasmBytes)
}

// Open compiles and instantiates the engine module.
func Open(ctx context.Context, wasmBytes []byte) (*Engine, error) {
	r := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to compile engine module: %w", err)
	}

	config := wazero.NewModuleConfig().
		WithName(ModuleName).
		WithStartFunctions("_initialize").
		WithStdout(nil).
		WithStderr(nil)

	mod, err := r.InstantiateModule(ctx, compiled, config)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate engine module: %w", err)
	}

	e := &Engine{
		runtime: r,
		module:  mod,
		fns:     make(map[string]api.Function, len(requiredExports)),
	}
	for _, name := range requiredExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			r.Close(ctx)
			return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
		e.fns[name] = fn
	}

	if e.version, err = e.readVersion(ctx); err != nil {
		r.Close(ctx)
		return nil, err
	}
	return e, nil
}

// Close releases the runtime and every guest allocation with it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Version returns the version reported by the module when it was opened.
func (e *Engine) Version() string {
	return e.version
}

func (e *Engine) readVersion(ctx context.Context) (string, error) {
	results, err := e.fns[fnVersion].Call(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read engine version: %w", err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return "", nil
	}
	return e.readString(uint32(results[0]), -1)
}

// InitializeSession opens an engine session.
func (e *Engine) InitializeSession(ctx context.Context, settings []byte) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.newScope(ctx)
	defer s.release()

	settingsPtr, err := s.cstring(settings)
	if err != nil {
		return 0, err
	}
	sessionCell, err := s.cell()
	if err != nil {
		return 0, err
	}

	results, err := e.fns[fnInitializeSession].Call(ctx,
		uint64(settingsPtr),
		uint64(len(settings)),
		uint64(sessionCell))
	if err != nil {
		return 0, fmt.Errorf("%s call failed: %w", fnInitializeSession, err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, engine.ErrSessionFailed
	}

	session, ok := e.module.Memory().ReadUint32Le(sessionCell)
	if !ok {
		return 0, ErrGuestMemory
	}
	if session == 0 {
		return 0, engine.ErrSessionFailed
	}
	return engine.Handle(session), nil
}

// DeinitializeSession closes an engine session.
func (e *Engine) DeinitializeSession(ctx context.Context, h engine.Handle) error {
	if h == 0 {
		return engine.ErrInvalidHandle
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.fns[fnDeinitializeSession].Call(ctx, uint64(h)); err != nil {
		return fmt.Errorf("%s call failed: %w", fnDeinitializeSession, err)
	}
	return nil
}

// Enroll runs privid_user_enroll.
func (e *Engine) Enroll(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return e.frameCall(ctx, fnEnroll, h, config, img)
}

// Predict runs privid_user_predict.
func (e *Engine) Predict(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return e.frameCall(ctx, fnPredict, h, config, img)
}

// Validate runs privid_validate_face.
func (e *Engine) Validate(ctx context.Context, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	return e.frameCall(ctx, fnValidate, h, config, img)
}

// Delete runs privid_user_delete.
func (e *Engine) Delete(ctx context.Context, h engine.Handle, config []byte, puid []byte) (engine.Output, error) {
	return e.call(ctx, fnDelete, h, config, func(s *scope) ([]uint64, error) {
		ptr, err := s.cstring(puid)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr), uint64(len(puid))}, nil
	})
}

// CompareEmbeddings runs privid_compare_embeddings.
func (e *Engine) CompareEmbeddings(ctx context.Context, h engine.Handle, config []byte, a, b []byte) (engine.Output, error) {
	return e.call(ctx, fnCompareEmbeddings, h, config, func(s *scope) ([]uint64, error) {
		aPtr, err := s.bytes(a)
		if err != nil {
			return nil, err
		}
		bPtr, err := s.bytes(b)
		if err != nil {
			return nil, err
		}
		return []uint64{uint64(aPtr), uint64(len(a)), uint64(bPtr), uint64(len(b))}, nil
	})
}

// CompareFaceAndEmbedding runs privid_compare_face_and_embedding.
func (e *Engine) CompareFaceAndEmbedding(ctx context.Context, h engine.Handle, config []byte, selfie engine.Frame, embedding []byte) (engine.Output, error) {
	if err := selfie.Validate(); err != nil {
		return nil, err
	}
	return e.call(ctx, fnCompareFaceEmb, h, config, func(s *scope) ([]uint64, error) {
		args, err := s.frame(selfie)
		if err != nil {
			return nil, err
		}
		embPtr, err := s.bytes(embedding)
		if err != nil {
			return nil, err
		}
		return append(args, uint64(embPtr), uint64(len(embedding))), nil
	})
}

// CompareDocumentAndFace runs privid_compare_mugshot_and_face.
func (e *Engine) CompareDocumentAndFace(ctx context.Context, h engine.Handle, config []byte, document, selfie engine.Frame) (engine.Output, error) {
	if err := document.Validate(); err != nil {
		return nil, err
	}
	if err := selfie.Validate(); err != nil {
		return nil, err
	}
	return e.call(ctx, fnCompareDocFace, h, config, func(s *scope) ([]uint64, error) {
		docArgs, err := s.frame(document)
		if err != nil {
			return nil, err
		}
		selfieArgs, err := s.frame(selfie)
		if err != nil {
			return nil, err
		}
		return append(docArgs, selfieArgs...), nil
	})
}

func (e *Engine) frameCall(ctx context.Context, name string, h engine.Handle, config []byte, img engine.Frame) (engine.Output, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return e.call(ctx, name, h, config, func(s *scope) ([]uint64, error) {
		return s.frame(img)
	})
}

// call runs one result-producing engine function. The argument list is
// session, config, config length, the operation arguments, then the two out
// cells for the result pointer and length.
func (e *Engine) call(ctx context.Context, name string, h engine.Handle, config []byte, args func(*scope) ([]uint64, error)) (engine.Output, error) {
	if h == 0 {
		return nil, engine.ErrInvalidHandle
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.newScope(ctx)
	defer s.release()

	configPtr, err := s.cstring(config)
	if err != nil {
		return nil, err
	}
	opArgs, err := args(s)
	if err != nil {
		return nil, err
	}
	outCell, err := s.cell()
	if err != nil {
		return nil, err
	}
	lenCell, err := s.cell()
	if err != nil {
		return nil, err
	}

	params := make([]uint64, 0, len(opArgs)+5)
	params = append(params, uint64(h), uint64(configPtr), uint64(len(config)))
	params = append(params, opArgs...)
	params = append(params, uint64(outCell), uint64(lenCell))

	results, err := e.fns[name].Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", name, err)
	}

	var status int32
	if len(results) > 0 {
		status = int32(uint32(results[0]))
	}

	mem := e.module.Memory()
	bufPtr, ok := mem.ReadUint32Le(outCell)
	if !ok {
		return nil, ErrGuestMemory
	}
	if bufPtr == 0 {
		return engine.NewBufferOutput("", false, status, nil), nil
	}

	n, ok := mem.ReadUint32Le(lenCell)
	if !ok {
		e.freeBuffer(ctx, bufPtr)
		return nil, ErrGuestMemory
	}
	text, err := e.readString(bufPtr, int32(n))
	if err != nil {
		e.freeBuffer(ctx, bufPtr)
		return nil, err
	}

	releaseCtx := context.WithoutCancel(ctx)
	return engine.NewBufferOutput(text, true, status, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.freeBuffer(releaseCtx, bufPtr)
	}), nil
}

// freeBuffer hands a result buffer back to the engine. Callers hold e.mu.
func (e *Engine) freeBuffer(ctx context.Context, ptr uint32) {
	_, _ = e.fns[fnFreeBuffer].Call(ctx, uint64(ptr))
}

// readString copies a string out of guest memory. A non-positive length means
// the string is NUL-terminated.
func (e *Engine) readString(ptr uint32, length int32) (string, error) {
	mem := e.module.Memory()
	if length > 0 {
		data, ok := mem.Read(ptr, uint32(length))
		if !ok {
			return "", ErrGuestMemory
		}
		return engine.BufferText(data), nil
	}

	size := mem.Size()
	if ptr >= size {
		return "", ErrGuestMemory
	}
	data, ok := mem.Read(ptr, size-ptr)
	if !ok {
		return "", ErrGuestMemory
	}
	return engine.BufferText(data), nil
}

// scope tracks guest allocations made for a single call.
type scope struct {
	e    *Engine
	ctx  context.Context
	ptrs []uint32
}

func (e *Engine) newScope(ctx context.Context) *scope {
	return &scope{e: e, ctx: ctx}
}

func (s *scope) alloc(size uint32) (uint32, error) {
	if size == 0 {
		size = 1
	}
	results, err := s.e.fns[fnMalloc].Call(s.ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, ErrGuestAlloc
	}
	s.ptrs = append(s.ptrs, ptr)
	return ptr, nil
}

func (s *scope) bytes(b []byte) (uint32, error) {
	ptr, err := s.alloc(uint32(len(b)))
	if err != nil {
		return 0, err
	}
	if len(b) > 0 && !s.e.module.Memory().Write(ptr, b) {
		return 0, ErrGuestMemory
	}
	return ptr, nil
}

// cstring copies b followed by a NUL terminator.
func (s *scope) cstring(b []byte) (uint32, error) {
	ptr, err := s.alloc(uint32(len(b) + 1))
	if err != nil {
		return 0, err
	}
	mem := s.e.module.Memory()
	if !mem.Write(ptr, b) || !mem.WriteByte(ptr+uint32(len(b)), 0) {
		return 0, ErrGuestMemory
	}
	return ptr, nil
}

// cell allocates a zeroed 4-byte out parameter.
func (s *scope) cell() (uint32, error) {
	ptr, err := s.alloc(4)
	if err != nil {
		return 0, err
	}
	if !s.e.module.Memory().WriteUint32Le(ptr, 0) {
		return 0, ErrGuestMemory
	}
	return ptr, nil
}

// frame copies the pixels and returns the (ptr, width, height) arguments.
func (s *scope) frame(f engine.Frame) ([]uint64, error) {
	ptr, err := s.bytes(f.Pix)
	if err != nil {
		return nil, err
	}
	return []uint64{uint64(ptr), uint64(f.Width), uint64(f.Height)}, nil
}

func (s *scope) release() {
	for i := len(s.ptrs) - 1; i >= 0; i-- {
		_, _ = s.e.fns[fnFree].Call(s.ctx, uint64(s.ptrs[i]))
	}
	s.ptrs = nil
}

var _ engine.Engine = (*Engine)(nil)
