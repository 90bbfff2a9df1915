package kernel

import (
	"context"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// FrameWriter transmits frames toward the simulator.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// FrameReader receives frames from the simulator.
type FrameReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// SocketCANWriter implements FrameWriter on a SocketCAN interface.
type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter dials iface (e.g. "vcan0") for transmission.
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{conn: conn, tx: socketcan.NewTransmitter(conn)}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANReader implements FrameReader on a SocketCAN interface.
type SocketCANReader struct {
	conn net.Conn
	rx   *socketcan.Receiver
}

// NewSocketCANReader dials iface for reception.
func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANReader{conn: conn, rx: socketcan.NewReceiver(conn)}, nil
}

// ReadFrame blocks until a frame arrives or ctx is cancelled. Cancellation
// closes the socket to unblock the receiver.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	type result struct {
		frame can.Frame
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		if r.rx.Receive() {
			ch <- result{frame: r.rx.Frame()}
			return
		}
		ch <- result{err: fmt.Errorf("socketcan receive failed")}
	}()

	select {
	case <-ctx.Done():
		_ = r.conn.Close()
		return can.Frame{}, ctx.Err()
	case res := <-ch:
		return res.frame, res.err
	}
}

func (r *SocketCANReader) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
