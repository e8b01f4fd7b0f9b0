package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Conn is a bidirectional byte stream, the abstraction every transport
// (stdio, TCP, WebSocket) reduces to before handing off to Serve.
type Conn interface {
	io.Reader
	io.Writer
	Close() error
}

// Serve runs the dispatcher's single-threaded read loop against conn until
// ctx is cancelled or the connection is closed. One goroutine reads and
// dispatches; Dispatch itself may run handlers concurrently via the
// pipeline's own bounded hook-budget goroutines, but message framing and
// response writing here are strictly sequential, matching the
// one-reader/one-writer ownership the concurrency model requires.
func (d *Dispatcher) Serve(ctx context.Context, conn Conn) error {
	reader := NewFrameReader(conn, d.bufferSize, d.maxMessageSize)
	writer := NewFrameWriter(conn)
	busy := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fill := reader.BackpressureFill()
		if fill >= d.backpressureThreshold && !busy {
			busy = true
			if err := writer.WriteMessage(busyNotification()); err != nil {
				return err
			}
		} else if fill < d.backpressureThreshold {
			busy = false
		}

		line, err := reader.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, ErrMessageTooLarge) {
				if werr := writer.WriteMessage(newError(nil, -32700, err.Error(), nil)); werr != nil {
					return werr
				}
				continue
			}
			return err
		}
		if len(line) == 0 {
			continue
		}

		resp := d.Dispatch(ctx, line)
		if resp == nil {
			continue
		}
		if err := writer.WriteMessage(*resp); err != nil {
			return err
		}
	}
}

// ServeLogged wraps Serve, logging a non-nil, non-context-cancellation
// error before returning.
func (d *Dispatcher) ServeLogged(ctx context.Context, conn Conn, logger *slog.Logger) {
	if err := d.Serve(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("dispatcher connection ended", "error", err)
	}
}
