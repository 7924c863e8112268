package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
	"github.com/fyrsmithlabs/mcpcore/pkg/transport"
)

func echoHandler(ctx context.Context, req *protocol.Request) *protocol.Response {
	resp, err := protocol.NewResultResponse(req.ID, map[string]string{"echo": req.Method})
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, err.Error()))
	}
	return resp
}

func startInBackground(t *testing.T, tr *Transport, handler func(context.Context, *protocol.Request) *protocol.Response) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- tr.Start(context.Background(), handler)
	}()
	return done
}

func TestTransport_SingleRequestResponse(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	done := startInBackground(t, tr, echoHandler)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop on EOF")
	}

	var resp protocol.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("failed to decode response: %v, raw: %s", err, out.String())
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %v", resp.Error)
	}
	if !resp.ID.Equal(protocol.NewIntID(1)) {
		t.Fatalf("id mismatch: got %v", resp.ID.Value)
	}
}

func TestTransport_NotificationProducesNoOutput(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notify"}` + "\n")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	if out.Len() != 0 {
		t.Fatalf("expected no output for notification, got: %s", out.String())
	}
}

func TestTransport_EmptyLinesSkipped(t *testing.T) {
	in := strings.NewReader("\n\n" + `{"jsonrpc":"2.0","id":"a","method":"ping"}` + "\n\n")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one response line, got %d: %v", len(lines), lines)
	}
}

func TestTransport_EOFIsGracefulStop(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	err := tr.Start(context.Background(), echoHandler)
	if err != nil {
		t.Fatalf("expected nil error on clean EOF, got %v", err)
	}
}

func TestTransport_MalformedJSONRecoversID(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":42,"method":` + "\n")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	var resp protocol.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("failed to decode response: %v, raw: %s", err, out.String())
	}
	if resp.Error == nil {
		t.Fatal("expected an error response for malformed JSON")
	}
	if resp.Error.Code() != protocol.ParseError.Code() {
		t.Fatalf("expected ParseError code, got %d", resp.Error.Code())
	}
	if resp.ID == nil || resp.ID.Value == nil {
		t.Fatalf("expected recovered id 42, got %v", resp.ID)
	}
}

func TestTransport_MalformedJSONNoRecoverableID(t *testing.T) {
	in := strings.NewReader(`not json at all` + "\n")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	var resp protocol.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("failed to decode response: %v, raw: %s", err, out.String())
	}
	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.ID != nil && resp.ID.Value != nil {
		t.Fatalf("expected null id when no id is recoverable, got %v", resp.ID.Value)
	}
}

func TestTransport_OversizeLineRejected(t *testing.T) {
	maxSize := 64
	oversized := strings.Repeat("a", maxSize+1)
	line := `{"jsonrpc":"2.0","id":1,"method":"` + oversized + `"}` + "\n"
	in := strings.NewReader(line)
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{MaxMessageSize: maxSize})

	<-startInBackground(t, tr, echoHandler)

	var resp protocol.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("failed to decode response: %v, raw: %s", err, out.String())
	}
	if resp.Error == nil {
		t.Fatal("expected an oversize rejection error")
	}
	if resp.Error.Code() != protocol.InvalidRequest.Code() {
		t.Fatalf("expected InvalidRequest code, got %d", resp.Error.Code())
	}
	if resp.ID != nil && resp.ID.Value != nil {
		t.Fatalf("expected null id for oversize reject, got %v", resp.ID.Value)
	}
	if !strings.Contains(resp.Error.Message, "exceeds maximum size") {
		t.Fatalf("unexpected message: %q", resp.Error.Message)
	}
}

func TestTransport_InvalidUTF8Rejected(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(`{"jsonrpc":"2.0","id":1,"method":"`)
	in.Write([]byte{0xff, 0xfe})
	in.WriteString(`"}` + "\n")

	var out bytes.Buffer
	tr := New(&in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	var resp protocol.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("failed to decode response: %v, raw: %s", err, out.String())
	}
	if resp.Error == nil {
		t.Fatal("expected a UTF-8 validation error")
	}
}

func TestTransport_MultipleRequestsInOrder(t *testing.T) {
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"a"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"b"}` + "\n" +
			`{"jsonrpc":"2.0","id":3,"method":"c"}` + "\n",
	)
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(lines))
	}
	for i, line := range lines {
		var resp protocol.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("line %d: decode failed: %v", i, err)
		}
		if !resp.ID.Equal(protocol.NewIntID(int64(i + 1))) {
			t.Fatalf("line %d: id mismatch, got %v", i, resp.ID.Value)
		}
	}
}

func TestTransport_BatchRequest(t *testing.T) {
	in := strings.NewReader(`[{"jsonrpc":"2.0","id":1,"method":"a"},{"jsonrpc":"2.0","id":2,"method":"b"}]` + "\n")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	<-startInBackground(t, tr, echoHandler)

	var resps []protocol.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resps); err != nil {
		t.Fatalf("failed to decode batch response: %v, raw: %s", err, out.String())
	}
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses in batch, got %d", len(resps))
	}
}

func TestTransport_StopIsIdempotent(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer
	tr := New(in, &out, nil, nil, Config{})

	if err := tr.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestTransport_HealthCheckReflectsRunningState(t *testing.T) {
	pr, pw := io.Pipe()
	var out bytes.Buffer
	tr := New(pr, &out, pr, nil, Config{})

	go tr.Start(context.Background(), echoHandler)

	deadline := time.Now().Add(2 * time.Second)
	for tr.HealthCheck() != transport.HealthOK && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tr.HealthCheck() != transport.HealthOK {
		t.Fatal("expected transport to report healthy while running")
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if tr.HealthCheck() != transport.HealthUnhealthy {
		t.Fatal("expected transport to report unhealthy after Stop")
	}
	pw.Close()
}
