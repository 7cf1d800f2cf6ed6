// Package server implements the multi-session TFTP listener (spec §4.2's
// server-session model): one shared socket accepts RRQ/WRQ datagrams and
// hands each off to pkg/transfer.HandleSession on its own dedicated socket,
// so every in-flight transfer gets its own TID per spec §3 invariant 2.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
	"github.com/holtzy/go-tftp/pkg/transfer"
	"go.uber.org/zap"
)

// Server accepts RRQ/WRQ requests on a single shared socket and serves each
// one on its own goroutine.
type Server struct {
	port    string
	rootDir string
	cfg     tftp.Config
	l       *zap.SugaredLogger
	conn    net.PacketConn

	onTransfer transfer.TransferFunc
}

// NewServer builds a Server bound to port, rooted at rootDir, tuned by cfg.
func NewServer(l *zap.SugaredLogger, port string, rootDir string, cfg tftp.Config) *Server {
	return &Server{l: l, port: port, rootDir: rootDir, cfg: cfg}
}

// OnTransfer registers a callback invoked once per completed or failed
// session (spec §3/§6's fleet-accounting hook).
func (s *Server) OnTransfer(fn transfer.TransferFunc) {
	s.onTransfer = fn
}

// ListenAndServe binds the shared socket and dispatches incoming requests
// until the socket is closed.
func (s *Server) ListenAndServe() error {
	lc := net.ListenConfig{Control: reusePort()}

	conn, err := lc.ListenPacket(context.Background(), "udp", fmt.Sprintf(":%s", s.port))
	if err != nil {
		return fmt.Errorf("error while binding udp socket on port %s: %w", s.port, err)
	}

	s.conn = conn
	datagram := make([]byte, tftp.DatagramSize+int(s.cfg.BlockSizeCap))

	for {
		n, addr, err := conn.ReadFrom(datagram)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("error while reading from udp socket: %w", err)
		}

		if n == 0 {
			continue
		}

		first := make([]byte, n)
		copy(first, datagram[:n])

		go s.handleRequest(first, addr)
	}
}

func (s *Server) handleRequest(first []byte, from net.Addr) {
	ctx := context.Background()

	if err := transfer.HandleSession(ctx, s.cfg, s.conn, first, from, s.rootDir, s.onTransfer, time.Second); err != nil {
		s.l.Errorf("error while serving session from %s: %s", from.String(), err.Error())
	}
}

func (s *Server) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("error while closing connection: %w", err)
	}

	return nil
}
