// Package transport carries [protocol.Request] messages between execution contexts.
//
// Contexts never share memory: [Local] copies every payload through JSON, and [Peer] moves frames over a
// websocket. Both satisfy [Caller], so the agent, broker and display clients are wired the same way whether they
// run in one process or several.
//
// [Mux] routes requests by [protocol.TargetOf] to the broker or to the currently active agent.
package transport
