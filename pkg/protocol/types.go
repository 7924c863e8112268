// Package protocol defines the JSON-RPC 2.0 envelope types, the MCP
// request/result DTOs, and the wire codec shared by every transport.
package protocol

import (
	"bytes"
	"encoding/json"
)

// Version is the JSON-RPC protocol version string carried on every envelope.
const Version = "2.0"

// ProtocolVersion is the MCP protocol version this framework negotiates by
// default. Hosts that support additional versions override it per request.
const ProtocolVersion = "2025-03-26"

// ID is a request identifier: a JSON string, a JSON number, or absent
// (a notification). A nil *ID means absent; an ID holding nil Value means
// a JSON null id, distinct from "absent" per the parse-error id-preservation
// rules.
type ID struct {
	Value interface{} // string, float64/json.Number, or nil
}

// NewStringID builds a string-valued ID.
func NewStringID(s string) *ID { return &ID{Value: s} }

// NewIntID builds an integer-valued ID.
func NewIntID(n int64) *ID { return &ID{Value: n} }

// NullID builds an explicit JSON-null ID, used when a parse error leaves
// no recoverable id.
func NullID() *ID { return &ID{Value: nil} }

// Equal reports whether two IDs carry the same logical value. Numeric
// values compare by float64 conversion since JSON numbers decode that way.
func (id *ID) Equal(other *ID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return normalizeIDValue(id.Value) == normalizeIDValue(other.Value)
}

func normalizeIDValue(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return v
	}
}

func (id *ID) MarshalJSON() ([]byte, error) {
	if id == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.Value)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	id.Value = v
	return nil
}

// Request is a single JSON-RPC request or notification envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *ID             `json:"id,omitempty"`
}

// IsNotification reports whether this envelope has no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a single JSON-RPC response envelope. Exactly one of Result
// or Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a success response, marshaling result to JSON.
func NewResultResponse(id *ID, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id *ID, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

// MessageKind distinguishes a single envelope from a batch of envelopes.
type MessageKind int

const (
	// Single marks a JsonRpcMessage holding exactly one request envelope.
	Single MessageKind = iota
	// Batch marks a JsonRpcMessage holding an ordered, non-empty sequence
	// of request envelopes.
	Batch
)

// JsonRpcMessage is the top-level decoded unit: either Single(one Request)
// or Batch(ordered []Request). A Batch is always non-empty by construction
// (ParseMessage rejects an empty JSON array as InvalidRequest).
type JsonRpcMessage struct {
	Kind     MessageKind
	Single   *Request
	Requests []*Request
}

// ResponseMessage is the corresponding top-level response: either a single
// Response or an ordered batch of Responses. Empty marks the "emit nothing"
// case (an input batch containing only notifications).
type ResponseMessage struct {
	Kind      MessageKind
	Single    *Response
	Responses []*Response
	Empty     bool
}

