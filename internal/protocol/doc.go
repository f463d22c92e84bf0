// Package protocol defines the messages exchanged between the agent, the broker and display clients.
//
// Every message is a flat JSON [Request] answered by a flat JSON [Response]. [Request.Command] decodes a request
// into one typed command per action so handlers switch on types instead of strings. [DecodeRequest] validates
// untrusted input against the embedded JSON Schema before decoding it.
//
// [TargetOf] names the context that owns an action; see [Target].
package protocol
