package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/holtzy/go-tftp/pkg/negotiate"
	"github.com/holtzy/go-tftp/pkg/pipeline"
	"github.com/holtzy/go-tftp/pkg/tftp"
)

// negotiateRequest sends req and waits for the server's first reply,
// retrying under the same budget as every in-transfer block (spec §3 inv.
// 5: the retry budget covers the whole exchange, not just DATA/ACK).
func negotiateRequest(sock *commSocket, cfg tftp.Config, req *tftp.Request, direction string) (tftp.Packet, net.Addr, error) {
	buf := make([]byte, tftp.DatagramSize+int(cfg.BlockSizeCap))
	retries := cfg.MaxRetries

	for {
		if err := sock.send(req, sock.peer); err != nil {
			return nil, nil, tftp.NewOSError(direction, err)
		}

		pkt, from, err := sock.recv(cfg.Timeout, buf)
		if err != nil {
			if isTimeoutErr(err) {
				retries--
				if retries == 0 {
					return nil, nil, tftp.NewTimeoutError(direction)
				}

				continue
			}

			return nil, nil, tftp.NewOSError(direction, err)
		}

		return pkt, from, nil
	}
}

// notifyNegotiationFailure best-effort notifies the peer when the local side
// rejects the peer's own OACK (currently: an offered blksize above the local
// cap, spec §4.2 "reject higher with ERROR 8 and terminate"). Only errors
// carrying that code are wire-worthy here: a *tftp.Error the peer already
// sent us needs no echo, and a malformed-option error has no peer-meaningful
// code to report.
func notifyNegotiationFailure(sock *commSocket, err error) {
	var terr *tftp.TransferError
	if !errors.As(err, &terr) || terr.Code != tftp.ErrOptionNegotiation {
		return
	}

	_ = sock.sendError(sock.peer, terr.Code, terr.Msg)
}

// sizedReader pairs an io.Reader with a declared length, implementing the
// Size() int64 duck-typed interface Send checks for when proposing tsize.
// *os.File (the real CLI upload path) only exposes its length via
// Stat().Size(), not a Size() method, so a caller reading from a file must
// wrap it with NewSizedReader instead of passing *os.File straight through.
type sizedReader struct {
	io.Reader
	size int64
}

// NewSizedReader wraps r so Send proposes the true tsize instead of 0.
func NewSizedReader(r io.Reader, size int64) io.Reader {
	return &sizedReader{Reader: r, size: size}
}

func (s *sizedReader) Size() int64 { return s.size }

// Send implements client-send (spec §4.1/§4.3): it proposes options, reads
// src through the negotiated pipeline, and drives the DATA/ACK loop to
// completion. progress may be nil; interval is ignored in that case.
func Send(ctx context.Context, cfg tftp.Config, peer string, filename string, src io.Reader, progress ProgressFunc, interval time.Duration) error {
	addr, err := resolvePeer(peer)
	if err != nil {
		return tftp.NewOSError("send", err)
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return tftp.NewOSError("send", fmt.Errorf("error while resolving peer address: %w", err))
	}

	pc, err := listenUDP()
	if err != nil {
		return tftp.NewOSError("send", err)
	}
	defer pc.Close()

	sock := &commSocket{pc: pc, peer: raddr}

	sizer, tsize := src, int64(0)
	if s, ok := sizer.(interface{ Size() int64 }); ok {
		tsize = s.Size()
	}

	req := &tftp.Request{
		Opcode_:  tftp.OpCodeWRQ,
		Filename: filename,
		Mode:     tftp.ModeOctet,
		Options:  negotiate.ClientPropose(cfg, tsize),
	}

	pkt, from, err := negotiateRequest(sock, cfg, req, "send")
	if err != nil {
		return err
	}

	sock.peer = from

	accepted, err := negotiate.ClientAcceptSend(pkt, cfg)
	if err != nil {
		notifyNegotiationFailure(sock, err)

		return err
	}

	if accepted.NegotiationAccepted {
		if err := sock.sendToPeer(&tftp.Ack{BlockNum: 0}); err != nil {
			return tftp.NewOSError("send", err)
		}
	}

	cnt := &counters{}
	cnt.total.Store(tsize)

	stop := runProgressLoop(ctx, progress, interval, cnt)
	defer stop()

	blockSize := int(accepted.BlockSize)

	var p pipeline.Source
	if pipeline.UseInline(cfg.ParallelIO, blockSize) {
		p = pipeline.NewInlineSource(src, blockSize)
	} else {
		p = pipeline.NewParallelSource(ctx, src, blockSize, cfg.MaxQueueBytes)
	}
	defer p.Close()

	return sendLoop(ctx, sock, cfg, accepted.BlockSize, time.Duration(accepted.Timeout)*time.Second, "send", p, cnt)
}

// Receive implements client-receive (spec §4.1/§4.3): it proposes options,
// accepts the server's OACK/first-DATA answer, and drives the DATA/ACK loop
// while streaming payload to dst. It returns the number of bytes written.
func Receive(ctx context.Context, cfg tftp.Config, peer string, filename string, dst io.Writer, progress ProgressFunc, interval time.Duration) (int64, error) {
	addr, err := resolvePeer(peer)
	if err != nil {
		return 0, tftp.NewOSError("receive", err)
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return 0, tftp.NewOSError("receive", fmt.Errorf("error while resolving peer address: %w", err))
	}

	pc, err := listenUDP()
	if err != nil {
		return 0, tftp.NewOSError("receive", err)
	}
	defer pc.Close()

	sock := &commSocket{pc: pc, peer: raddr}

	req := &tftp.Request{
		Opcode_:  tftp.OpCodeRRQ,
		Filename: filename,
		Mode:     tftp.ModeOctet,
		Options:  negotiate.ClientPropose(cfg, 0),
	}

	pkt, from, err := negotiateRequest(sock, cfg, req, "receive")
	if err != nil {
		return 0, err
	}

	sock.peer = from

	accepted, err := negotiate.ClientAcceptReceive(pkt, cfg)
	if err != nil {
		notifyNegotiationFailure(sock, err)

		return 0, err
	}

	if accepted.NegotiationAccepted {
		if err := sock.sendToPeer(&tftp.Ack{BlockNum: 0}); err != nil {
			return 0, tftp.NewOSError("receive", err)
		}
	}

	cnt := &counters{}
	cnt.total.Store(accepted.TotalSize)

	stop := runProgressLoop(ctx, progress, interval, cnt)
	defer stop()

	blockSize := int(accepted.BlockSize)

	var sink pipeline.Sink
	if pipeline.UseInline(cfg.ParallelIO, blockSize) {
		sink = pipeline.NewInlineSink(dst)
	} else {
		sink = pipeline.NewParallelSink(ctx, dst, blockSize, cfg.MaxQueueBytes)
	}

	if err := recvLoop(ctx, sock, cfg, accepted.BlockSize, time.Duration(accepted.Timeout)*time.Second, "receive", sink, cnt, accepted.FirstPayload); err != nil {
		sink.Close()

		return cnt.snapshot().TransferredBytes, err
	}

	if err := sink.Close(); err != nil {
		return cnt.snapshot().TransferredBytes, tftp.NewIOError("receive", err)
	}

	return cnt.snapshot().TransferredBytes, nil
}

// resolveRootedPath joins rootDir and filename, rejecting any result that
// escapes rootDir (spec §4.2 server-session's path-traversal invariant).
func resolveRootedPath(rootDir, filename string) (string, error) {
	clean := filepath.Clean(filename)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("path escapes root directory")
	}

	full := filepath.Join(rootDir, clean)

	rel, err := filepath.Rel(rootDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root directory")
	}

	return full, nil
}
