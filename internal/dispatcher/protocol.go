// Package dispatcher implements the JSON-RPC 2.0 / NDJSON front end: a
// single-threaded cooperative event loop that frames messages, tracks
// in-flight requests, enforces timeouts, and routes methods through the
// hook pipeline to handlers.
package dispatcher

import "encoding/json"

// RequestID is either a string or a number per JSON-RPC 2.0; keeping it as
// json.RawMessage preserves the id's exact wire representation on echo.
type RequestID = json.RawMessage

// Message is the wire envelope for both requests and notifications. A
// message with a nil ID is a notification; no response is sent for it.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether m carries no id.
func (m Message) IsNotification() bool { return len(m.ID) == 0 }

// WireError is the JSON-RPC error object.
type WireError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Response is the wire envelope sent back for a non-notification request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

func newResult(id RequestID, result any) Response {
	body, _ := json.Marshal(result)
	return Response{JSONRPC: "2.0", ID: id, Result: body}
}

func newError(id RequestID, code int, message string, data map[string]any) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &WireError{Code: code, Message: message, Data: data}}
}

// busyNotification is sent, unsolicited, when the inbound buffer crosses
// the backpressure threshold.
func busyNotification() Message {
	return Message{JSONRPC: "2.0", Method: "server/busy"}
}

func marshalCompact(v any) ([]byte, error) {
	return json.Marshal(v)
}
