package domain

import (
	"bytes"
	"encoding/json"
)

// JSON-RPC error codes reserved on the tool port wire.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// ProtocolVersion is the protocol revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// NullID is the reply id used when the originating id is unrecoverable,
// e.g. after a parse error.
var NullID = json.RawMessage("null")

// Request is an inbound tool-port frame. ID stays raw so replies can echo
// it byte-for-byte whether the peer sent a string or a number. The jsonrpc
// tag is accepted for compatibility but never required.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the frame carries no usable id and
// therefore expects no reply.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, NullID)
}

// Response is an outbound tool-port frame. With ID set it is a reply and
// carries exactly one of Result or Error; with Method set and no ID it is
// a server-pushed notification.
type Response struct {
	JSONRPC string    `json:"jsonrpc,omitempty"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	Method  string    `json:"method,omitempty"`
	Params  any       `json:"params,omitempty"`
}

// NewReply builds a success reply echoing the request id.
func NewReply(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewErrorReply builds an error reply echoing the request id.
func NewErrorReply(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// NewNotification builds an id-less server push.
func NewNotification(method string, params any) Response {
	return Response{JSONRPC: "2.0", Method: method, Params: params}
}

// RPCError is the structured error member of a reply. It implements error
// so remote failures can flow through ordinary error returns on the
// client side.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}
