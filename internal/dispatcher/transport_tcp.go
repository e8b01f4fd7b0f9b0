package dispatcher

import (
	"context"
	"log/slog"
	"net"
)

// ListenTCP accepts connections on addr and serves each with its own
// Dispatcher.Serve loop until ctx is cancelled.
func ListenTCP(ctx context.Context, addr string, d *Dispatcher, logger *slog.Logger) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Error("tcp accept failed", "error", err)
				continue
			}
		}
		go d.ServeLogged(ctx, conn, logger)
	}
}
