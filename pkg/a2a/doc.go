// Package a2a implements the agent-to-agent wire protocol spoken between the
// bridge and the in-process agent server: JSON-RPC 2.0 over HTTP, with
// server-sent events for streaming replies.
//
// Invariants:
// - Stream events are kept as the raw JSON-RPC result so they can be
//   forwarded without re-encoding.
// - A Stream is single-use; Recv returns io.EOF once the server closes it.
//
// Usage:
//
//	client := a2a.NewClient("http://127.0.0.1:8080")
//	task, _ := client.SendMessage(ctx, a2a.MessageSendParams{Message: a2a.NewUserMessage("hi", "", "")})
//	stream, _ := client.SendStreamingMessage(ctx, params)
//	defer stream.Close()
//	for {
//		ev, err := stream.Recv()
//		if err == io.EOF {
//			break
//		}
//		_ = ev
//	}
package a2a
