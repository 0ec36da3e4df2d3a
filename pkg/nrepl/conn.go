package nrepl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/slatelisp/slate/pkg/bencode"
)

// conn owns one accepted socket and its session. Its serve loop is the
// only goroutine touching the session and the frame remainder.
type conn struct {
	netConn net.Conn
	sess    *Session
	d       *dispatcher
	logger  *slog.Logger
	metrics *Metrics

	chunkSize int
	remainder []byte
	enc       *bencode.Encoder
}

func newConn(netConn net.Conn, d *dispatcher, chunkSize int, metrics *Metrics, logger *slog.Logger) *conn {
	sess := NewSession()
	return &conn{
		netConn:   netConn,
		sess:      sess,
		d:         d,
		logger:    logger.With("remote", netConn.RemoteAddr().String(), "session", sess.ID),
		metrics:   metrics,
		chunkSize: chunkSize,
		enc:       bencode.NewEncoder(),
	}
}

// serve runs the read, decode, dispatch, write loop until the socket
// closes or framing fails. Requests are handled strictly sequentially:
// the next request is not dispatched until the current one has emitted
// all of its responses.
func (c *conn) serve(ctx context.Context) {
	defer func() {
		c.netConn.Close()
		c.metrics.connClosed()
		if c.d.transcripts != nil {
			if err := c.d.transcripts.Flush(context.Background(), c.sess.ID); err != nil {
				c.logger.Warn("transcript flush failed", "error", err)
			}
		}
		c.logger.Debug("connection closed")
	}()

	c.logger.Debug("connection open")
	buf := make([]byte, c.chunkSize)
	for {
		n, err := c.netConn.Read(buf)
		if n > 0 {
			c.metrics.addRead(n)
			c.remainder = append(c.remainder, buf[:n]...)
			msgs, rest, derr := bencode.DecodeAll(c.remainder, nil)
			c.remainder = append(c.remainder[:0], rest...)
			for _, raw := range msgs {
				req, ok := raw.(map[string]any)
				if !ok {
					derr = errors.New("nrepl: message is not a dictionary")
					break
				}
				c.d.dispatch(ctx, c.sess, Message(req), c.send)
			}
			if derr != nil {
				// Framing failure is fatal to this connection only.
				c.metrics.decodeFailed()
				c.logger.Warn("malformed frame, dropping connection", "error", derr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		if err := ctx.Err(); err != nil {
			return
		}
	}
}

// send encodes one response message and writes it to the socket
// immediately: one wire write per response, in generation order.
func (c *conn) send(m Message) error {
	c.enc.Reset()
	if err := c.enc.AppendValue(map[string]any(m)); err != nil {
		return err
	}
	n, err := c.netConn.Write(c.enc.Bytes())
	c.metrics.addWritten(n)
	return err
}
