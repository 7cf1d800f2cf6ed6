package transfer

// White-box tests for the driver's fault-handling paths (spec §8's
// "Stranger rejection" and "Single packet drop" scenarios). These live in
// package transfer, not transfer_test, because they drive sendLoop/recvLoop
// and commSocket directly rather than through the public Send/Receive/
// HandleSession entrypoints, the same "small in-package fake" style as
// Frizz925-datagram-toolkit's mocks package.

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holtzy/go-tftp/pkg/pipeline"
	"github.com/holtzy/go-tftp/pkg/tftp"
	"github.com/stretchr/testify/require"
)

// dropOnceConn wraps a real net.PacketConn and silently drops exactly one
// outgoing datagram (the first WriteTo call), reporting success to the
// caller as if it had gone out. Every later write passes through untouched,
// which is enough to force one retransmit without a full packet-loss
// simulator.
type dropOnceConn struct {
	net.PacketConn
	dropped atomic.Bool
}

func (c *dropOnceConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if !c.dropped.Swap(true) {
		return len(b), nil
	}

	return c.PacketConn.WriteTo(b, addr)
}

func mustListen(t *testing.T) net.PacketConn {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	return pc
}

// TestSendLoopRetransmitsAfterSingleDroppedData drops the first DATA
// datagram sendLoop emits for block 1 and checks the transfer still
// completes byte-identical once the retry budget kicks in (spec §8
// scenario 5, "Single packet drop").
func TestSendLoopRetransmitsAfterSingleDroppedData(t *testing.T) {
	senderConn := &dropOnceConn{PacketConn: mustListen(t)}
	receiverConn := mustListen(t)

	sendSock := &commSocket{pc: senderConn, peer: receiverConn.LocalAddr()}
	recvSock := &commSocket{pc: receiverConn, peer: senderConn.LocalAddr()}

	cfg := tftp.DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 5

	payload := bytes.Repeat([]byte{0xAB}, 30)

	var out bytes.Buffer
	sink := pipeline.NewInlineSink(&out)

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- recvLoop(context.Background(), recvSock, cfg, 512, cfg.Timeout, "write", sink, &counters{}, nil)
	}()

	src := pipeline.NewInlineSource(bytes.NewReader(payload), 512)
	err := sendLoop(context.Background(), sendSock, cfg, 512, cfg.Timeout, "read", src, &counters{})
	require.NoError(t, err)

	require.NoError(t, <-recvErr)
	require.Equal(t, payload, out.Bytes())
	require.True(t, senderConn.dropped.Load())
}

// TestSendLoopAnswersStrangerPacketWithoutAborting injects a datagram from a
// third endpoint at the sender while it is awaiting an ACK, and checks the
// sender answers it with ERROR 5 (UnknownTransferId) and keeps driving the
// legitimate transfer to completion (spec §8 scenario 6, "Foreign packet
// injection").
func TestSendLoopAnswersStrangerPacketWithoutAborting(t *testing.T) {
	senderConn := mustListen(t)
	receiverConn := mustListen(t)
	strangerConn := mustListen(t)

	sendSock := &commSocket{pc: senderConn, peer: receiverConn.LocalAddr()}
	recvSock := &commSocket{pc: receiverConn, peer: senderConn.LocalAddr()}

	cfg := tftp.DefaultConfig()
	cfg.Timeout = 200 * time.Millisecond
	cfg.MaxRetries = 5

	// Several blocks, with stray datagrams both queued before the transfer
	// starts and injected repeatedly while it runs. A loopback transfer can
	// finish before the ticker's first tick, so the queued one guarantees
	// that sendLoop reads a stranger packet while awaiting its first ACK.
	payload := bytes.Repeat([]byte{0xCD}, 512*5+10)

	var out bytes.Buffer
	sink := pipeline.NewInlineSink(&out)

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- recvLoop(context.Background(), recvSock, cfg, 512, cfg.Timeout, "write", sink, &counters{}, nil)
	}()

	stop := make(chan struct{})
	go func() {
		stray := &tftp.Ack{BlockNum: 0}
		b, err := stray.MarshalBinary()
		if err != nil {
			return
		}

		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = strangerConn.WriteTo(b, senderConn.LocalAddr())
			}
		}
	}()

	queued, err := (&tftp.Ack{BlockNum: 0}).MarshalBinary()
	require.NoError(t, err)
	_, err = strangerConn.WriteTo(queued, senderConn.LocalAddr())
	require.NoError(t, err)

	src := pipeline.NewInlineSource(bytes.NewReader(payload), 512)
	err = sendLoop(context.Background(), sendSock, cfg, 512, cfg.Timeout, "read", src, &counters{})
	close(stop)
	require.NoError(t, err)
	require.NoError(t, <-recvErr)
	require.Equal(t, payload, out.Bytes())

	buf := make([]byte, tftp.DatagramSize)
	require.NoError(t, strangerConn.SetReadDeadline(time.Now().Add(time.Second)))

	n, _, err := strangerConn.ReadFrom(buf)
	require.NoError(t, err)

	pkt, err := tftp.DecodePacket(buf[:n])
	require.NoError(t, err)

	errPkt, ok := pkt.(*tftp.Error)
	require.True(t, ok)
	require.Equal(t, tftp.ErrUnknownTransferId, errPkt.ErrorCode)
}

// TestCommSocketRecvRejectsFilledBuffer checks that a datagram landing
// exactly at the caller's buffer size is rejected as a possible truncation
// rather than silently decoded as a complete packet.
func TestCommSocketRecvRejectsFilledBuffer(t *testing.T) {
	serverConn := mustListen(t)
	clientConn := mustListen(t)

	sock := &commSocket{pc: serverConn, peer: clientConn.LocalAddr()}

	ack := &tftp.Ack{BlockNum: 3}
	b, err := ack.MarshalBinary()
	require.NoError(t, err)

	_, err = clientConn.WriteTo(b, serverConn.LocalAddr())
	require.NoError(t, err)

	buf := make([]byte, len(b))
	_, _, err = sock.recv(time.Second, buf)
	require.ErrorIs(t, err, tftp.ErrBufferTooSmall)
}

// TestAwaitClientAck0DiscardsEarlyDataOnWrite checks the write-side
// carve-out from spec.md:75: a DATA packet arriving before the client's
// ACK(0) is out-of-order and must be discarded rather than aborting the
// session, and the real ACK(0) that follows is still accepted.
func TestAwaitClientAck0DiscardsEarlyDataOnWrite(t *testing.T) {
	serverConn := mustListen(t)
	clientConn := mustListen(t)

	sock := &commSocket{pc: serverConn, peer: clientConn.LocalAddr()}

	cfg := tftp.DefaultConfig()
	cfg.Timeout = time.Second
	cfg.MaxRetries = 5

	early := &tftp.Data{BlockNum: 1, Payload: []byte("too soon")}
	b, err := early.MarshalBinary()
	require.NoError(t, err)
	_, err = clientConn.WriteTo(b, serverConn.LocalAddr())
	require.NoError(t, err)

	ack := &tftp.Ack{BlockNum: 0}
	b, err = ack.MarshalBinary()
	require.NoError(t, err)
	_, err = clientConn.WriteTo(b, serverConn.LocalAddr())
	require.NoError(t, err)

	require.NoError(t, awaitClientAck0(sock, cfg, cfg.Timeout, nil, true))
}

// TestAwaitClientAck0RejectsEarlyDataOnRead checks that the same early-DATA
// tolerance does not apply on the read side: an unexpected DATA while
// awaiting ACK(0) is treated like any other unexpected packet and eventually
// exhausts the retry budget.
func TestAwaitClientAck0RejectsEarlyDataOnRead(t *testing.T) {
	serverConn := mustListen(t)
	clientConn := mustListen(t)

	sock := &commSocket{pc: serverConn, peer: clientConn.LocalAddr()}

	cfg := tftp.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 2

	stray := &tftp.Data{BlockNum: 1, Payload: []byte("unexpected")}
	b, err := stray.MarshalBinary()
	require.NoError(t, err)

	go func() {
		for i := 0; i < 3; i++ {
			_, _ = clientConn.WriteTo(b, serverConn.LocalAddr())
			time.Sleep(cfg.Timeout)
		}
	}()

	err = awaitClientAck0(sock, cfg, cfg.Timeout, nil, false)
	require.Error(t, err)

	var terr *tftp.TransferError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, tftp.KindTimeout, terr.Kind)
}
