package server

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control is the net.ListenConfig.Control hook signature.
type control func(network, address string, c syscall.RawConn) error

// reusePort returns a Control hook that sets SO_REUSEPORT on the listening
// socket before bind, so a restarted server can rebind the same port while
// an old listener is still draining in-flight sessions.
func reusePort() control {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error

		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}

		return opErr
	}
}
