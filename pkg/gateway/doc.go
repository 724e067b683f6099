// Package gateway exposes a bridge.Service to front-end clients over
// JSON-RPC 2.0, on a WebSocket (/ws) and as single-shot HTTP (/rpc).
//
// With a shared secret, WebSocket clients answer an HMAC-SHA256 challenge
// and /rpc callers send the secret in the X-Radbridge-Secret header.
// Without one every client is trusted, which is only allowed on a loopback
// address.
//
// Invariants:
// - Every event reaches authenticated clients only, stamped with a
//   sequence number that grows by one per event.
// - Tool requests and stream events published on the event bus are
//   forwarded under their topic name.
// - A result for an unknown or finished tool request fails with
//   RequestNotFound (-32004).
// - A request repeating the method and idempotency key of an earlier
//   successful one gets that response back without running again.
//
// Usage:
//
//	srv, err := gateway.NewServer(gateway.Config{Service: svc, Bus: bus, Logger: logger})
//	if err != nil { ... }
//	err = srv.Serve(ctx)
package gateway
