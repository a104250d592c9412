package webostv

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connector is the part of Client ConnectQuietly needs.
type Connector interface {
	Connect(ctx context.Context) error
}

// ConnectQuietly attempts a connection and swallows the failures expected
// from a TV that is switched off or has not been paired. Anything else is
// returned.
func ConnectQuietly(ctx context.Context, c Connector, logger *zap.Logger) error {
	err := c.Connect(ctx)
	if err == nil {
		return nil
	}
	if isExpectedConnectError(err) {
		if logger != nil {
			logger.Debug("tv not reachable", zap.Error(err))
		}
		return nil
	}
	return err
}

func isExpectedConnectError(err error) bool {
	var pairErr *PairError
	var cmdErr *CommandError
	switch {
	case errors.As(err, &pairErr), errors.As(err, &cmdErr):
		return true
	case errors.Is(err, context.Canceled):
		return true
	}
	return isTransportError(err)
}

// isTransportError reports socket, handshake and timeout failures.
func isTransportError(err error) bool {
	var netErr net.Error
	var opErr *net.OpError
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &netErr), errors.As(err, &opErr), errors.As(err, &closeErr):
		return true
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, websocket.ErrBadHandshake),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}
	return false
}
