package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	kvErr "github.com/sajjad-MoBe/kvserver/node/src/internal/errors"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
)

// Connection serves one client: read a frame, decode it, dispatch it, write
// the response, repeat. Requests on one connection are handled strictly in
// order.
type Connection struct {
	id          uint64
	conn        net.Conn
	reader      *protocol.FrameReader
	codec       protocol.Codec
	dispatcher  *Dispatcher
	idleTimeout time.Duration
	logger      *zap.Logger
	stopping    atomic.Bool
}

func newConnection(id uint64, conn net.Conn, codec protocol.Codec, dispatcher *Dispatcher, config Config, logger *zap.Logger) *Connection {
	return &Connection{
		id:          id,
		conn:        conn,
		reader:      protocol.NewFrameReader(conn, config.ReadBufferSize, config.MaxFrameSize),
		codec:       codec,
		dispatcher:  dispatcher,
		idleTimeout: config.IdleTimeout,
		logger: logger.With(
			zap.Uint64("conn_id", id),
			zap.String("remote", conn.RemoteAddr().String()),
		),
	}
}

// Handle runs the request loop until the peer disconnects, an unrecoverable
// transport error occurs or Stop is called. The socket is always closed on
// return.
func (c *Connection) Handle(ctx context.Context) {
	defer c.conn.Close()
	c.logger.Debug("connection opened")

	for {
		if c.idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}
		// Stop may have raced with the deadline above.
		if c.stopping.Load() {
			c.logger.Debug("connection stopped")
			return
		}

		frame, err := c.reader.Next()
		if err != nil {
			c.readFailed(err)
			return
		}

		resp := c.process(ctx, frame)
		if _, err := c.conn.Write(c.codec.Encode(resp)); err != nil {
			c.logger.Debug("write failed, closing connection", zap.Error(err))
			return
		}
	}
}

// Stop asks the connection to finish after the request in flight
func (c *Connection) Stop() {
	c.stopping.Store(true)
	_ = c.conn.SetReadDeadline(time.Now())
}

// Close closes the socket immediately
func (c *Connection) Close() {
	c.stopping.Store(true)
	_ = c.conn.Close()
}

func (c *Connection) process(ctx context.Context, frame []byte) (resp *protocol.Response) {
	var op protocol.Op
	defer func() {
		if r := recover(); r != nil {
			err := kvErr.RecoverError(r)
			c.logger.Error("request panicked", zap.String("op", string(op)), zap.Error(err))
			resp = protocol.Failure(op, err)
		}
	}()

	req, err := c.codec.Decode(frame)
	if err != nil {
		c.dispatcher.Rejected()
		c.logger.Debug("malformed request", zap.Error(err))
		return protocol.Failure("", err)
	}
	op = req.Op
	return c.dispatcher.Dispatch(ctx, req)
}

func (c *Connection) readFailed(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		c.logger.Debug("client disconnected")
	case errors.Is(err, protocol.ErrFrameTooLarge):
		c.logger.Warn("frame too large, closing connection", zap.Int("buffered", c.reader.Buffered()))
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = c.conn.Write(c.codec.Encode(protocol.Failure("", err)))
	case c.stopping.Load():
		c.logger.Debug("connection stopped")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Debug("idle timeout, closing connection")
	case errors.Is(err, net.ErrClosed):
		c.logger.Debug("connection closed")
	default:
		c.logger.Warn("read failed, closing connection", zap.Error(err))
	}
}
