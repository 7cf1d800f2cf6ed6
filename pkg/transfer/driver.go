package transfer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/holtzy/go-tftp/pkg/pipeline"
	"github.com/holtzy/go-tftp/pkg/tftp"
)

// releaser is implemented by pipeline sources that recycle chunk buffers
// (ParallelSource); InlineSource allocates fresh slices and needs no
// release step.
type releaser interface {
	Release(pipeline.Chunk)
}

func isTimeoutErr(err error) bool {
	var netErr net.Error

	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return errors.Is(err, os.ErrDeadlineExceeded)
}

// sendLoop implements the DATA-emitting half of spec §4.3: client-send's
// {Sending, AwaitingAck, Finalizing} states, and identically the server's
// RRQ-serving path. It owns nothing; sock, src and cnt are all provided by
// the caller and torn down by them.
func sendLoop(ctx context.Context, sock *commSocket, cfg tftp.Config, blockSize uint16, timeout time.Duration, direction string, src pipeline.Source, cnt *counters) error {
	block := uint16(1)
	retries := cfg.MaxRetries
	recvBuf := make([]byte, int(blockSize)+4+512)

	rel, _ := src.(releaser)

	for {
		chunk, err := src.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}

			_ = sock.sendError(sock.peer, tftp.ErrNotDefined, err.Error())

			return tftp.NewIOError(direction, err)
		}

		data := &tftp.Data{BlockNum: block, Payload: chunk.Data, MaxPayload: blockSize}
		acked := false
		resend := true

		for !acked {
			if resend {
				if err := sock.sendToPeer(data); err != nil {
					return tftp.NewOSError(direction, err)
				}
			}

			resend = true

			pkt, from, err := sock.recv(timeout, recvBuf)
			if err != nil {
				if isTimeoutErr(err) {
					retries--
					if retries == 0 {
						return tftp.NewTimeoutError(direction)
					}

					continue
				}

				return tftp.NewOSError(direction, err)
			}

			if sock.isStranger(from) {
				if err := sock.sendError(from, tftp.ErrUnknownTransferId, "unexpected transfer id"); err != nil {
					return tftp.NewOSError(direction, err)
				}

				continue
			}

			switch p := pkt.(type) {
			case *tftp.Ack:
				if p.BlockNum == block {
					retries = cfg.MaxRetries
					acked = true

					break
				}

				if isPriorBlock(p.BlockNum, block) {
					// Duplicate ack for the block we already advanced past;
					// ignore without touching the retry budget (spec §4.3
					// tie-break).
					resend = false

					continue
				}

				retries--
				if retries == 0 {
					return tftp.NewTimeoutError(direction)
				}
			case *tftp.Error:
				return tftp.NewProtocolError(direction, p.ErrorCode, p.ErrMsg)
			default:
				retries--
				if retries == 0 {
					return tftp.NewTimeoutError(direction)
				}
			}
		}

		cnt.transferred.Add(int64(len(chunk.Data)))

		if rel != nil {
			rel.Release(chunk)
		}

		if chunk.Last {
			return nil
		}

		block = nextBlock(block)
	}
}

// recvLoop implements the DATA-consuming half of spec §4.3: client-receive's
// {AwaitingData, Acking} states, and identically the server's WRQ-serving
// path.
func recvLoop(ctx context.Context, sock *commSocket, cfg tftp.Config, blockSize uint16, timeout time.Duration, direction string, sink pipeline.Sink, cnt *counters, firstPayload []byte) error {
	block := uint16(1)
	retries := cfg.MaxRetries

	if firstPayload != nil {
		last := len(firstPayload) < int(blockSize)
		if err := deliverAndAck(ctx, sock, sink, cnt, block, firstPayload, last, direction); err != nil {
			return err
		}

		if last {
			return nil
		}

		block = nextBlock(block)
	}

	recvBuf := make([]byte, int(blockSize)+4+512)

	for {
		pkt, from, err := sock.recv(timeout, recvBuf)
		if err != nil {
			if isTimeoutErr(err) {
				retries--
				if retries == 0 {
					return tftp.NewTimeoutError(direction)
				}

				if err := reackPrevious(sock, block); err != nil {
					return tftp.NewOSError(direction, err)
				}

				continue
			}

			return tftp.NewOSError(direction, err)
		}

		if sock.isStranger(from) {
			if err := sock.sendError(from, tftp.ErrUnknownTransferId, "unexpected transfer id"); err != nil {
				return tftp.NewOSError(direction, err)
			}

			continue
		}

		switch p := pkt.(type) {
		case *tftp.Data:
			if isPriorBlock(p.BlockNum, block) {
				if err := reackPrevious(sock, block); err != nil {
					return tftp.NewOSError(direction, err)
				}

				retries--
				if retries == 0 {
					return tftp.NewTimeoutError(direction)
				}

				continue
			}

			if p.BlockNum != block {
				retries--
				if retries == 0 {
					return tftp.NewTimeoutError(direction)
				}

				continue
			}

			last := len(p.Payload) < int(blockSize)

			if err := deliverAndAck(ctx, sock, sink, cnt, block, p.Payload, last, direction); err != nil {
				return err
			}

			if last {
				return nil
			}

			retries = cfg.MaxRetries
			block = nextBlock(block)
		case *tftp.Error:
			return tftp.NewProtocolError(direction, p.ErrorCode, p.ErrMsg)
		default:
			retries--
			if retries == 0 {
				return tftp.NewTimeoutError(direction)
			}
		}
	}
}

func deliverAndAck(ctx context.Context, sock *commSocket, sink pipeline.Sink, cnt *counters, block uint16, payload []byte, last bool, direction string) error {
	if err := sink.Push(ctx, pipeline.Chunk{Data: payload, Last: last}); err != nil {
		_ = sock.sendError(sock.peer, tftp.ErrNotDefined, err.Error())

		return tftp.NewIOError(direction, err)
	}

	cnt.transferred.Add(int64(len(payload)))

	if err := sock.sendToPeer(&tftp.Ack{BlockNum: block}); err != nil {
		return tftp.NewOSError(direction, err)
	}

	return nil
}

func reackPrevious(sock *commSocket, currentExpected uint16) error {
	prev := currentExpected - 1

	return sock.sendToPeer(&tftp.Ack{BlockNum: prev})
}
