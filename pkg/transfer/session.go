package transfer

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/holtzy/go-tftp/pkg/negotiate"
	"github.com/holtzy/go-tftp/pkg/pipeline"
	"github.com/holtzy/go-tftp/pkg/tftp"
)

// HandleSession serves a single RRQ or WRQ to completion (spec §4.2/§4.3's
// server-session state machine). conn is the listener's shared socket;
// first is the already-received request datagram and from its sender. The
// server owns a dedicated per-session socket (spec §3 inv. 2: the TID must
// change after the first response), so HandleSession opens its own
// commSocket rather than reusing conn.
func HandleSession(ctx context.Context, cfg tftp.Config, conn net.PacketConn, first []byte, from net.Addr, rootDir string, onTransfer TransferFunc, interval time.Duration) error {
	pkt, err := tftp.DecodePacket(first)
	if err != nil {
		return tftp.NewOSError("session", err)
	}

	req, ok := pkt.(*tftp.Request)
	if !ok {
		return tftp.NewProtocolError("session", tftp.ErrIllegalTftpOp, "initial datagram is not a request")
	}

	path, err := resolveRootedPath(rootDir, req.Filename)
	if err != nil {
		sendErrorTo(conn, from, tftp.ErrAccessViolation, err.Error())

		return tftp.NewProtocolError("session", tftp.ErrAccessViolation, err.Error())
	}

	pc, err := listenUDP()
	if err != nil {
		return tftp.NewOSError("session", err)
	}
	defer pc.Close()

	sock := &commSocket{pc: pc, peer: from}

	var direction tftp.Direction
	var transferErr error
	cnt := &counters{}

	switch req.Opcode_ {
	case tftp.OpCodeRRQ:
		direction = tftp.DirectionRead
		transferErr = serveRRQ(ctx, sock, cfg, req, path, cnt, interval)
	case tftp.OpCodeWRQ:
		direction = tftp.DirectionWrite
		transferErr = serveWRQ(ctx, sock, cfg, req, path, cnt, interval)
	default:
		sock.sendError(from, tftp.ErrIllegalTftpOp, "expected RRQ or WRQ")

		return tftp.NewProtocolError("session", tftp.ErrIllegalTftpOp, "expected RRQ or WRQ")
	}

	if onTransfer != nil {
		snap := cnt.snapshot()
		onTransfer(tftp.TransferInfo{
			Direction:   direction,
			PeerAddr:    from,
			Filename:    req.Filename,
			Transferred: snap.TransferredBytes,
			TotalSize:   snap.TotalBytes,
		})
	}

	return transferErr
}

func serveRRQ(ctx context.Context, sock *commSocket, cfg tftp.Config, req *tftp.Request, path string, cnt *counters, interval time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		code := tftp.ErrFileNotFound
		if os.IsPermission(err) {
			code = tftp.ErrAccessViolation
		}

		sock.sendError(sock.peer, code, err.Error())

		return tftp.NewProtocolError("read", code, err.Error())
	}
	defer f.Close()

	var knownSize int64
	if fi, err := f.Stat(); err == nil {
		knownSize = fi.Size()
	}

	accepted, blockSize, timeout := negotiate.ServerReconcile(req, cfg, knownSize)

	cnt.total.Store(knownSize)

	var src pipeline.Source
	if pipeline.UseInline(cfg.ParallelIO, int(blockSize)) {
		src = pipeline.NewInlineSource(f, int(blockSize))
	} else {
		src = pipeline.NewParallelSource(ctx, f, int(blockSize), cfg.MaxQueueBytes)
	}
	defer src.Close()

	if len(req.Options) == 0 {
		return sendLoop(ctx, sock, cfg, blockSize, timeout, "read", src, cnt)
	}

	if err := negotiateServerSend(sock, accepted, timeout); err != nil {
		return err
	}

	if err := awaitClientAck0(sock, cfg, timeout, accepted, false); err != nil {
		return err
	}

	return sendLoop(ctx, sock, cfg, blockSize, timeout, "read", src, cnt)
}

func serveWRQ(ctx context.Context, sock *commSocket, cfg tftp.Config, req *tftp.Request, path string, cnt *counters, interval time.Duration) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		code := tftp.ErrAccessViolation
		if os.IsExist(err) {
			code = tftp.ErrFileAlreadyExists
		}

		sock.sendError(sock.peer, code, err.Error())

		return tftp.NewProtocolError("write", code, err.Error())
	}
	defer f.Close()

	accepted, blockSize, timeout := negotiate.ServerReconcile(req, cfg, 0)

	if v, ok := tftp.OptionValue(req.Options, tftp.OptTsize); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cnt.total.Store(n)
		}
	}

	var sink pipeline.Sink
	if pipeline.UseInline(cfg.ParallelIO, int(blockSize)) {
		sink = pipeline.NewInlineSink(f)
	} else {
		sink = pipeline.NewParallelSink(ctx, f, int(blockSize), cfg.MaxQueueBytes)
	}

	if len(req.Options) == 0 {
		if err := sock.sendToPeer(&tftp.Ack{BlockNum: 0}); err != nil {
			return tftp.NewOSError("write", err)
		}
	} else {
		if err := negotiateServerSend(sock, accepted, timeout); err != nil {
			return err
		}

		if err := awaitClientAck0(sock, cfg, timeout, accepted, true); err != nil {
			return err
		}
	}

	if err := recvLoop(ctx, sock, cfg, blockSize, timeout, "write", sink, cnt, nil); err != nil {
		sink.Close()

		return err
	}

	return sink.Close()
}

// awaitClientAck0 waits for the client's ACK(0) confirming a just-sent OACK
// before the server starts transferring (spec §4.2: "wait for the client's
// ACK(0) before transferring"). A lost OACK is handled the same way as a
// lost DATA/ACK elsewhere in the driver: retransmit on timeout, budgeted by
// cfg.MaxRetries. For a write, an early DATA is out-of-order (the client
// hasn't confirmed the handshake yet) and is discarded rather than failing
// the session, per spec.md's explicit write-side carve-out.
func awaitClientAck0(sock *commSocket, cfg tftp.Config, timeout time.Duration, accepted []tftp.Option, discardEarlyData bool) error {
	buf := make([]byte, tftp.DatagramSize+int(cfg.BlockSizeCap))
	retries := cfg.MaxRetries

	for {
		pkt, from, err := sock.recv(timeout, buf)
		if err != nil {
			if isTimeoutErr(err) {
				retries--
				if retries == 0 {
					return tftp.NewTimeoutError("negotiate")
				}

				if err := sock.sendToPeer(&tftp.OAck{Options: accepted}); err != nil {
					return tftp.NewOSError("negotiate", err)
				}

				continue
			}

			return tftp.NewOSError("negotiate", err)
		}

		if sock.isStranger(from) {
			if err := sock.sendError(from, tftp.ErrUnknownTransferId, "unexpected transfer id"); err != nil {
				return tftp.NewOSError("negotiate", err)
			}

			continue
		}

		switch p := pkt.(type) {
		case *tftp.Ack:
			if p.BlockNum == 0 {
				return nil
			}

			retries--
			if retries == 0 {
				return tftp.NewTimeoutError("negotiate")
			}
		case *tftp.Data:
			if discardEarlyData {
				continue
			}

			retries--
			if retries == 0 {
				return tftp.NewTimeoutError("negotiate")
			}
		case *tftp.Error:
			return tftp.NewProtocolError("negotiate", p.ErrorCode, p.ErrMsg)
		default:
			retries--
			if retries == 0 {
				return tftp.NewTimeoutError("negotiate")
			}
		}
	}
}

func negotiateServerSend(sock *commSocket, accepted []tftp.Option, timeout time.Duration) error {
	if err := sock.sendToPeer(&tftp.OAck{Options: accepted}); err != nil {
		return tftp.NewOSError("negotiate", err)
	}

	return nil
}

func sendErrorTo(conn net.PacketConn, to net.Addr, code tftp.ErrCode, msg string) {
	e := &tftp.Error{ErrorCode: code, ErrMsg: msg}
	if b, err := e.MarshalBinary(); err == nil {
		_, _ = conn.WriteTo(b, to)
	}
}
