//go:build !linux

package canbus

// SocketOption configures DialSocketCAN.
type SocketOption func(*socketConfig)

type socketConfig struct{}

// WithReceiveIDs is accepted for API parity; SocketCAN is linux-only.
func WithReceiveIDs(ids ...uint32) SocketOption { return func(*socketConfig) {} }

// WithLocalLoopback is accepted for API parity; SocketCAN is linux-only.
func WithLocalLoopback() SocketOption { return func(*socketConfig) {} }

// DialSocketCAN always fails outside linux.
func DialSocketCAN(iface string, opts ...SocketOption) (Bus, error) {
	return nil, ErrUnsupported
}

// IsInterfaceUp always fails outside linux.
func IsInterfaceUp(name string) (bool, error) { return false, ErrUnsupported }

// SetInterfaceUp always fails outside linux.
func SetInterfaceUp(name string) error { return ErrUnsupported }

// SetInterfaceDown always fails outside linux.
func SetInterfaceDown(name string) error { return ErrUnsupported }

// RequireRootOrCapNetAdmin returns err unchanged outside linux.
func RequireRootOrCapNetAdmin(err error) error { return err }
