package transfer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
)

// commSocket wraps an unconnected net.PacketConn and the peer address
// learned from the first reply (spec §3's comm_addr). It stays unconnected
// deliberately: a connected UDP socket would have the kernel silently drop
// datagrams from any other source, which would make the stranger-rejection
// invariant (spec §3 inv. 1) impossible to observe or test.
type commSocket struct {
	pc   net.PacketConn
	peer net.Addr
}

func listenUDP() (net.PacketConn, error) {
	pc, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("error while binding udp socket: %w", err)
	}

	return pc, nil
}

// resolvePeer accepts "host" or "host:port" (spec §6); a bare host assumes
// tftp.DefaultPort.
func resolvePeer(peer string) (string, error) {
	if _, _, err := net.SplitHostPort(peer); err == nil {
		return peer, nil
	}

	if strings.TrimSpace(peer) == "" {
		return "", fmt.Errorf("empty peer address")
	}

	return net.JoinHostPort(peer, strconv.Itoa(tftp.DefaultPort)), nil
}

func (s *commSocket) send(pkt tftp.Packet, to net.Addr) error {
	b, err := pkt.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshalling packet: %w", err)
	}

	if _, err := s.pc.WriteTo(b, to); err != nil {
		return fmt.Errorf("error while writing packet: %w", err)
	}

	return nil
}

func (s *commSocket) sendToPeer(pkt tftp.Packet) error {
	return s.send(pkt, s.peer)
}

func (s *commSocket) sendError(to net.Addr, code tftp.ErrCode, msg string) error {
	return s.send(&tftp.Error{ErrorCode: code, ErrMsg: msg}, to)
}

// recv waits up to timeout for a datagram, decoding it into a Packet. It
// returns the sender address unconditionally so the caller can apply the
// stranger-rejection rule itself.
func (s *commSocket) recv(timeout time.Duration, buf []byte) (tftp.Packet, net.Addr, error) {
	if err := s.pc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, fmt.Errorf("error while setting read deadline: %w", err)
	}

	n, from, err := s.pc.ReadFrom(buf)
	if err != nil {
		return nil, nil, err
	}

	// A UDP read that exactly fills buf may have silently truncated a
	// larger datagram (net.PacketConn.ReadFrom drops the excess); reject
	// rather than decode a partial packet as if it were the whole thing.
	if n == len(buf) {
		return nil, from, tftp.ErrBufferTooSmall
	}

	pkt, err := tftp.DecodePacket(buf[:n])
	if err != nil {
		return nil, from, err
	}

	return pkt, from, nil
}

func (s *commSocket) isStranger(from net.Addr) bool {
	if s.peer == nil {
		return false
	}

	return from.String() != s.peer.String()
}

func (s *commSocket) close() error {
	return s.pc.Close()
}
