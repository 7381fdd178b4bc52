// Package types defines the relay wire protocol shared by the server and
// any Go client.
package types

import (
	"encoding/json"

	"letterduel/internal/engine"
)

const (
	// Client -> Server
	MsgSubscribe = "Subscribe"
	MsgPatch     = "Patch"

	// Server -> Client
	MsgSnapshot = "Snapshot"
	MsgAck      = "Ack"
	MsgError    = "Error"
)

// ClientMessage is what a game client sends over the websocket. A Subscribe
// binds the connection to one room; a Patch carries raw field updates plus a
// sequence number the server echoes back on the ack.
type ClientMessage struct {
	Type   string                     `json:"type"`
	Room   string                     `json:"room,omitempty"`
	Seq    int                        `json:"seq,omitempty"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
}

// ServerMessage is a snapshot push or a patch outcome. Doc is null on a
// snapshot for an unused room code; that null is meaningful, so the field is
// never omitted.
type ServerMessage struct {
	Type  string       `json:"type"`
	Room  string       `json:"room,omitempty"`
	Seq   int          `json:"seq,omitempty"`
	Doc   *engine.Room `json:"doc"`
	Error string       `json:"error,omitempty"`
}
