package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// ParseMessage decodes a complete UTF-8 JSON document into a JsonRpcMessage.
// A top-level JSON array marks a batch; anything else is parsed as a single
// envelope. ParseMessage never inspects method/param semantics, only shape.
func ParseMessage(text []byte) (*JsonRpcMessage, *Error) {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 {
		return nil, NewError(ParseError, "Invalid JSON: empty input")
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, parseErrorWithID(trimmed, err)
		}
		if len(raw) == 0 {
			return nil, NewError(InvalidRequest, "batch must not be empty")
		}
		requests := make([]*Request, 0, len(raw))
		for _, entry := range raw {
			var req Request
			if err := json.Unmarshal(entry, &req); err != nil {
				return nil, parseErrorWithID(entry, err)
			}
			requests = append(requests, &req)
		}
		return &JsonRpcMessage{Kind: Batch, Requests: requests}, nil
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, parseErrorWithID(trimmed, err)
	}
	return &JsonRpcMessage{Kind: Single, Single: &req}, nil
}

// idLiteralPattern matches `"id":` followed by an integer or quoted string
// literal, used for best-effort id recovery out of malformed JSON.
var idLiteralPattern = regexp.MustCompile(`"id"\s*:\s*(?:"([^"]*)"|(-?[0-9]+))`)

// ExtractIDFromMalformed performs a best-effort substring scan for an `"id"`
// literal in text that failed to parse as JSON. Returns nil if nothing is
// found, in which case the caller must respond with id = null.
func ExtractIDFromMalformed(text []byte) *ID {
	m := idLiteralPattern.FindSubmatchIndex(text)
	if m == nil {
		return nil
	}
	// Group 1 (quoted string) spans m[2]:m[3]; group 2 (integer) spans m[4]:m[5].
	if m[2] != -1 {
		return NewStringID(string(text[m[2]:m[3]]))
	}
	if m[4] != -1 {
		n, err := strconv.ParseInt(string(text[m[4]:m[5]]), 10, 64)
		if err != nil {
			return nil
		}
		return NewIntID(n)
	}
	return nil
}

func parseErrorWithID(text []byte, cause error) *Error {
	id := ExtractIDFromMalformed(text)
	msg := fmt.Sprintf("Invalid JSON: %s", cause)
	err := NewError(ParseError, msg)
	if id != nil {
		err.Data = map[string]interface{}{"recovered_id": id.Value}
	}
	return err
}

// ValidateRequest enforces the JSON-RPC 2.0 envelope shape rules: jsonrpc
// must equal "2.0", method must be a non-empty string when present, and the
// id, if present, must be a string, a number, or null.
func ValidateRequest(req *Request) *Error {
	if req.JSONRPC != Version {
		return NewError(InvalidRequest, fmt.Sprintf("jsonrpc must be %q, got %q", Version, req.JSONRPC))
	}
	if req.Method == "" {
		return NewError(InvalidRequest, "method must be a non-empty string")
	}
	if req.ID != nil {
		switch req.ID.Value.(type) {
		case string, json.Number, float64, int64, int, nil:
		default:
			return NewError(InvalidRequest, "id must be a string, number, or null")
		}
	}
	return nil
}

// ValidateMessage validates a full JsonRpcMessage: for Batch, every entry
// must individually validate; a Batch is already guaranteed non-empty by
// ParseMessage, but callers constructing a JsonRpcMessage by hand must not
// bypass that invariant.
func ValidateMessage(msg *JsonRpcMessage) *Error {
	switch msg.Kind {
	case Single:
		return ValidateRequest(msg.Single)
	case Batch:
		if len(msg.Requests) == 0 {
			return NewError(InvalidRequest, "batch must not be empty")
		}
		for _, req := range msg.Requests {
			if err := ValidateRequest(req); err != nil {
				return err
			}
		}
		return nil
	default:
		return NewError(InvalidRequest, "unknown message kind")
	}
}

// Serialize renders a ResponseMessage to a single JSON document with a
// trailing newline, matching stdio framing. Returns nil, nil when the
// message is Empty (nothing should be written).
func Serialize(msg *ResponseMessage) ([]byte, error) {
	if msg.Empty {
		return nil, nil
	}
	var out []byte
	var err error
	switch msg.Kind {
	case Single:
		out, err = json.Marshal(msg.Single)
	case Batch:
		out, err = json.Marshal(msg.Responses)
	default:
		return nil, fmt.Errorf("protocol: unknown response message kind")
	}
	if err != nil {
		return nil, err
	}
	if bytes.ContainsRune(out, '\n') {
		return nil, fmt.Errorf("protocol: serialized message contains an embedded newline")
	}
	return append(out, '\n'), nil
}
