package protocol

import "encoding/json"

// FrameKind tells a peer how to treat an inbound [Frame].
type FrameKind string

const (
	FrameCall     FrameKind = "call"
	FrameNotify   FrameKind = "notify"
	FrameResponse FrameKind = "response"
)

// Frame is the websocket wire unit. Calls and their responses share an ID; notifications carry none.
type Frame struct {
	ID       string          `json:"id,omitempty"`
	Kind     FrameKind       `json:"kind"`
	Request  json.RawMessage `json:"request,omitempty"`
	Response *Response       `json:"response,omitempty"`
}
