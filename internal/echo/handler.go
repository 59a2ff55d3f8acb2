package echo

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/coder/websocket"

	"github.com/opensesame/sesametools/internal/ports"
)

// messageConn is the part of *websocket.Conn the echo loop uses.
type messageConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Reply returns prefix followed by payload.
func Reply(prefix string, payload []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(payload))
	out = append(out, prefix...)
	return append(out, payload...)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.lifecycle.AddWorker()
	defer s.lifecycle.WorkerDone()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Any origin may connect.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			ports.String("remote", r.RemoteAddr),
			ports.Err(err),
		)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.cfg.MaxMessageBytes)

	s.serveConn(r.Context(), conn, r.RemoteAddr)
}

// serveConn runs the per-connection echo loop. Replies are written on the
// reading goroutine, so each reply goes out before the next read.
func (s *Server) serveConn(ctx context.Context, conn messageConn, remote string) {
	addr := ports.String("remote", remote)

	s.logger.Info("new connection", addr)
	defer s.logger.Info("client connection ended", addr)
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("unexpected error",
				addr,
				ports.Any("panic", rec),
				ports.String("stack", string(debug.Stack())),
			)
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			s.logReadEnd(ctx, err, addr)
			return
		}

		if typ == websocket.MessageText {
			s.logger.Info("received message", addr, ports.String("message", string(data)))
		} else {
			s.logger.Info("received binary message", addr, ports.Int("bytes", len(data)))
		}

		if err := conn.Write(ctx, typ, Reply(s.cfg.Prefix, data)); err != nil {
			s.logger.Error("error processing message", addr, ports.Err(err))
		}
	}
}

func (s *Server) logReadEnd(ctx context.Context, err error, addr ports.Field) {
	switch {
	case ctx.Err() != nil:
		s.logger.Info("connection closed for shutdown", addr)
	case isClosure(err):
		code, reason := closeDetails(err)
		s.logger.Warn("connection closed",
			addr,
			ports.Int("code", int(code)),
			ports.String("reason", reason),
		)
	default:
		s.logger.Error("unexpected error",
			addr,
			ports.Err(err),
			ports.String("stack", string(debug.Stack())),
		)
	}
}

// isClosure reports whether err means the peer went away, either with a
// close frame or by dropping the connection.
func isClosure(err error) bool {
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func closeDetails(err error) (websocket.StatusCode, string) {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Reason
	}
	return websocket.StatusAbnormalClosure, err.Error()
}
