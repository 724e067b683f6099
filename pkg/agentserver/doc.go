// Package agentserver is the in-process agent the bridge supervises. It
// serves the a2a protocol over HTTP and answers messages with a chat skill
// that can call tools supplied by the host.
//
// Invariants:
// - Every message/stream reply starts with the task snapshot and ends with
//   exactly one status update marked final.
// - A task runs at most one turn at a time; tasks/cancel stops the turn.
// - Tasks and memory live only as long as the Server.
//
// Usage:
//
//	srv, _ := agentserver.New(agentserver.Config{Name: "assistant", Model: model, Tools: tools})
//	go srv.Serve(ctx, "127.0.0.1:0")
package agentserver
