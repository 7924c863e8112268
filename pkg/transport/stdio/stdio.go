// Package stdio implements the reference MCP transport: newline-delimited
// JSON over a pair of byte streams, normally process stdin/stdout.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
	"github.com/fyrsmithlabs/mcpcore/pkg/transport"
)

// DefaultMaxMessageSize is the default per-message size cap: 10 MiB.
const DefaultMaxMessageSize = 10 * 1024 * 1024

// Config configures a Transport.
type Config struct {
	// MaxMessageSize caps the size, in bytes, of a single inbound line
	// before the trailing newline. Zero selects DefaultMaxMessageSize.
	MaxMessageSize int
	// Concurrent, when true, lets the batch processor dispatch a batch's
	// requests concurrently when the backend also opts in.
	Concurrent bool
}

// Transport implements transport.Transport over a reader/writer pair using
// strict newline framing: one JSON document per line, no embedded
// newlines, UTF-8 validated, size-capped. It runs a single-threaded read
// loop: read a line, validate it, dispatch it, write the response, flush,
// and loop. EOF on input is a graceful stop.
type Transport struct {
	reader    *bufio.Reader
	writer    io.Writer
	closer    io.Closer
	logger    *logging.Logger
	cfg       Config
	writeLock sync.Mutex
	running   atomic.Bool
}

// New builds a stdio Transport over r/w. closer, if non-nil, is invoked on
// Stop to release the underlying stream.
func New(r io.Reader, w io.Writer, closer io.Closer, logger *logging.Logger, cfg Config) *Transport {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Transport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: closer,
		logger: logger.Named("stdio"),
		cfg:    cfg,
	}
}

// Start begins the read loop. It blocks until Stop is called, the peer
// closes the stream (EOF), or ctx is cancelled.
func (t *Transport) Start(ctx context.Context, handler transport.Handler) error {
	t.running.Store(true)

	for t.running.Load() {
		select {
		case <-ctx.Done():
			t.running.Store(false)
			return ctx.Err()
		default:
		}

		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(line) == 0 {
					t.running.Store(false)
					return nil
				}
				// A final unterminated line before EOF is still processed,
				// matching the line's own framing once trimmed.
			} else {
				t.running.Store(false)
				return fmt.Errorf("stdio: read failed: %w", err)
			}
		}

		trimmed := trimNewline(line)
		if len(trimmed) == 0 {
			continue
		}

		if !t.running.Load() {
			return nil
		}

		resp := t.processLine(ctx, handler, trimmed)
		if resp == nil {
			continue
		}
		if werr := t.writeResponse(resp); werr != nil {
			return werr
		}
	}
	return nil
}

func (t *Transport) processLine(ctx context.Context, handler transport.Handler, line []byte) []byte {
	if len(line) > t.cfg.MaxMessageSize {
		errResp := protocol.NewErrorResponse(protocol.NullID(), protocol.NewErrorWithData(
			protocol.InvalidRequest,
			fmt.Sprintf("Message exceeds maximum size of %d bytes", t.cfg.MaxMessageSize),
			map[string]interface{}{"size": len(line), "max": t.cfg.MaxMessageSize},
		))
		out, _ := protocol.Serialize(&protocol.ResponseMessage{Kind: protocol.Single, Single: errResp})
		return out
	}

	if !utf8.Valid(line) {
		errResp := protocol.NewErrorResponse(protocol.NullID(), protocol.NewError(protocol.InvalidRequest, "Message is not valid UTF-8"))
		out, _ := protocol.Serialize(&protocol.ResponseMessage{Kind: protocol.Single, Single: errResp})
		return out
	}

	msg, perr := protocol.ParseMessage(line)
	if perr != nil {
		var id *protocol.ID
		if perr.Data != nil {
			if data, ok := perr.Data.(map[string]interface{}); ok {
				if v, ok := data["recovered_id"]; ok {
					id = &protocol.ID{Value: v}
				}
			}
		}
		if id == nil {
			id = protocol.NullID()
		}
		errResp := protocol.NewErrorResponse(id, perr)
		out, _ := protocol.Serialize(&protocol.ResponseMessage{Kind: protocol.Single, Single: errResp})
		return out
	}

	if verr := protocol.ValidateMessage(msg); verr != nil {
		errResp := protocol.NewErrorResponse(protocol.NullID(), verr)
		out, _ := protocol.Serialize(&protocol.ResponseMessage{Kind: protocol.Single, Single: errResp})
		return out
	}

	respMsg := transport.ProcessMessage(ctx, handler, msg, t.cfg.Concurrent)
	out, serr := protocol.Serialize(respMsg)
	if serr != nil {
		// An outgoing message that would contain an embedded newline is a
		// fatal protocol error, not a per-message reject: log it and drop
		// this response rather than corrupt the stream framing.
		t.logger.Error(ctx, "refusing to write malformed outbound frame", zap.Error(serr))
		return nil
	}
	return out
}

func (t *Transport) writeResponse(data []byte) error {
	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("stdio: write failed: %w", err)
	}
	if f, ok := t.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Stop requests graceful shutdown. It is idempotent; the read loop exits at
// its next read boundary.
func (t *Transport) Stop() error {
	t.running.Store(false)
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// HealthCheck reports OK while the read loop is running.
func (t *Transport) HealthCheck() transport.HealthStatus {
	if t.running.Load() {
		return transport.HealthOK
	}
	return transport.HealthUnhealthy
}

func trimNewline(line []byte) []byte {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return line[:n]
}
