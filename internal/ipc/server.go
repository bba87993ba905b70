package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// requestDeadline bounds reading the request and, separately, writing the response.
const requestDeadline = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one JSON request per connection until ctx is done or the listener closes.
// logger may be nil.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler, logger)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler, logger *slog.Logger) {
	defer conn.Close()
	start := time.Now()
	_ = conn.SetReadDeadline(start.Add(requestDeadline))

	resp, command := decodeAndHandle(ctx, conn, handler)
	_ = conn.SetWriteDeadline(time.Now().Add(requestDeadline))
	if err := json.NewEncoder(conn).Encode(resp); err != nil && logger != nil {
		logger.Warn("ipc response write failed", "command", command, "error", err)
		return
	}
	if logger == nil {
		return
	}
	if !resp.OK {
		logger.Warn("ipc request rejected", "command", command, "error", resp.Error)
		return
	}
	logger.Debug("ipc request",
		"command", command,
		"state", resp.State,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func decodeAndHandle(ctx context.Context, conn net.Conn, handler Handler) (Response, string) {
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{OK: false, Error: fmt.Sprintf("read request: %v", err)}, ""
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)}, ""
	}
	return handler.Handle(ctx, req), req.Command
}
