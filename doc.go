// Package cryptonet is a session client for a prebuilt privacy-preserving
// face matching engine.
//
// The engine does all of the biometric work. This package owns the session
// lifecycle, prepares images and option objects for the engine, and turns the
// engine's result buffers back into JSON strings.
//
// # Sessions
//
// A Client holds at most one engine session. It starts Uninitialized, becomes
// Active after InitializeSession and Closed after DeinitializeSession. Every
// other operation requires an Active session and fails with ErrNoSession
// otherwise, without calling the engine.
//
// # Images
//
// Every image is resized to a square working resolution (1000x1000 unless
// configured otherwise) and converted to RGBA before it is handed over. The
// resize does not preserve aspect ratio.
//
// # Basic Usage
//
//	eng, err := wasm.OpenFile(ctx, "privid_fhe.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	client, err := cryptonet.New(eng, cryptonet.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.InitializeSession(ctx, settingsJSON); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.DeinitializeSession(ctx)
//
//	result, err := client.Enroll(ctx, img, cryptonet.NewEnrollConfig())
//
// # Subpackages
//
//   - engine: the engine contract, plus native (cgo) and wasm (wazero) bindings
//   - imaging: image decoding and the canonical resize
//   - registry: bookkeeping of enrolled users
//   - server: HTTP front for a shared client
package cryptonet
