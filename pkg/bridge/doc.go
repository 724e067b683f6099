// Package bridge connects a locally supervised agent server with a remote
// front-end that executes the agent's tools and consumes its streams.
//
// A Supervisor starts the agent server on a loopback port and waits for it
// to answer. Tool calls made by the agent go through a ToolCallBridge, which
// publishes a request to the front-end and parks the call in a PendingTable
// until the front-end submits a result. A StreamRelay forwards streamed chat
// events to an EventSink. SessionState owns the running agent and the table,
// and Service exposes the operations a transport dispatches to.
//
// Invariants:
// - Request ids are fresh per invocation and never reused.
// - A pending slot receives at most one outcome; removing the entry from
//   the table is what closes a request.
// - A tool request is published only after its slot is in the table.
// - Locks are never held while waiting on a slot, a probe or a stream.
// - Every wait is bounded: readiness by the attempt budget, invocations by
//   the tool timeout, streams by their session.
//
// Usage:
//
//	svc, _ := bridge.NewService(bridge.ServiceConfig{Notifier: bus, Sink: bus, Logger: logger})
//	card, err := svc.InitAgent(ctx, bridge.InitRequest{Model: modelCfg, Tools: defs})
//	task, err := svc.Chat(ctx, bridge.ChatRequest{Message: "hello"})
//	err = svc.SubmitToolOutput(ctx, requestID, result, false)
package bridge
