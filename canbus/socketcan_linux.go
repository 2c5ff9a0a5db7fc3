//go:build linux

package canbus

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// can_frame is 16 bytes for classical CAN.
const canFrameSize = 16

// SocketOption configures DialSocketCAN.
type SocketOption func(*socketConfig)

type socketConfig struct {
	rxIDs    []uint32
	loopback bool
}

// WithReceiveIDs installs a kernel CAN_RAW filter so only the given
// identifiers are queued on the socket. Identifiers above 0x7FF are matched
// as extended.
func WithReceiveIDs(ids ...uint32) SocketOption {
	return func(c *socketConfig) { c.rxIDs = append(c.rxIDs, ids...) }
}

// WithLocalLoopback keeps the kernel default of delivering frames sent by
// other sockets on the same host. Without it local loopback is disabled.
func WithLocalLoopback() SocketOption {
	return func(c *socketConfig) { c.loopback = true }
}

// socketCAN implements Bus over a non-blocking Linux CAN_RAW socket.
type socketCAN struct {
	fd     int
	mu     sync.Mutex
	closed bool
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name (e.g., "can0").
func DialSocketCAN(iface string, opts ...SocketOption) (Bus, error) {
	var cfg socketConfig
	for _, o := range opts {
		o(&cfg)
	}

	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}
	if !cfg.loopback {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_LOOPBACK, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("canbus: disable loopback: %w", err)
		}
	}
	if len(cfg.rxIDs) > 0 {
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, rawFilters(cfg.rxIDs)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("canbus: set filter: %w", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %s: %w", iface, err)
	}
	return &socketCAN{fd: fd}, nil
}

func rawFilters(ids []uint32) []unix.CanFilter {
	out := make([]unix.CanFilter, 0, len(ids))
	for _, id := range ids {
		if IsExtendedID(id) {
			out = append(out, unix.CanFilter{
				Id:   id | unix.CAN_EFF_FLAG,
				Mask: unix.CAN_EFF_MASK | unix.CAN_EFF_FLAG | unix.CAN_RTR_FLAG,
			})
			continue
		}
		out = append(out, unix.CanFilter{
			Id:   id,
			Mask: unix.CAN_SFF_MASK | unix.CAN_EFF_FLAG | unix.CAN_RTR_FLAG,
		})
	}
	return out
}

func (s *socketCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

func (s *socketCAN) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send writes one frame. A full socket send buffer maps to ErrTxFull; the
// frame is not retried.
func (s *socketCAN) Send(frame Frame) error {
	if s.isClosed() {
		return ErrClosed
	}
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := unix.Write(s.fd, buf)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOBUFS):
		return ErrTxFull
	case err != nil:
		return err
	case n != len(buf):
		return errors.New("canbus: short write")
	}
	return nil
}

// TryReceive reads one pending frame, reporting ok=false when the socket
// queue is empty.
func (s *socketCAN) TryReceive() (Frame, bool, error) {
	if s.isClosed() {
		return Frame{}, false, ErrClosed
	}
	var buf [canFrameSize]byte
	n, err := unix.Read(s.fd, buf[:])
	switch {
	case errors.Is(err, unix.EAGAIN):
		return Frame{}, false, nil
	case err != nil:
		return Frame{}, false, err
	case n != canFrameSize:
		return Frame{}, false, errors.New("canbus: short read")
	}
	var f Frame
	if err := f.UnmarshalBinary(buf[:]); err != nil {
		return Frame{}, false, err
	}
	return f, true, nil
}
