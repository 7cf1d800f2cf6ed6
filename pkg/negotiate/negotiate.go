// Package negotiate drives the RRQ/WRQ -> OACK/ACK/DATA option handshake
// described in spec §4.2. It is split out of the transfer driver so the
// reconciliation rules can be tested without a socket.
package negotiate

import (
	"strconv"
	"time"

	"github.com/holtzy/go-tftp/pkg/tftp"
)

// ClientPropose builds the three-option list a client attaches to its
// request: tsize (0 if unknown, or the size being sent), blksize (the
// configured cap) and timeout.
func ClientPropose(cfg tftp.Config, tsize int64) []tftp.Option {
	return []tftp.Option{
		{Key: tftp.OptTsize, Value: strconv.FormatInt(tsize, 10)},
		{Key: tftp.OptBlksize, Value: strconv.Itoa(int(cfg.BlockSizeCap))},
		{Key: tftp.OptTimeout, Value: strconv.Itoa(int(cfg.Timeout.Seconds()))},
	}
}

// Accepted is what the client learns from the server's first response.
type Accepted struct {
	// BlockSize is the negotiated DATA payload size.
	BlockSize uint16
	// Timeout is the negotiated per-packet retry timeout.
	Timeout int
	// TotalSize is the peer-reported tsize, 0 if unknown or not applicable.
	TotalSize int64
	// NegotiationAccepted is false when the peer silently ignored every
	// option (ACK(0) for a send, or an immediate DATA(1) for a receive).
	NegotiationAccepted bool
	// FirstPayload is set only when the server skipped negotiation and
	// answered an RRQ directly with DATA(block=1) (spec §4.2 client-receive
	// branch 3); the driver must deliver it without waiting for another
	// DATA packet.
	FirstPayload []byte
}

// ClientAcceptSend interprets the server's answer to a WRQ: OACK, or
// ACK(0) meaning "options not understood, revert to defaults".
func ClientAcceptSend(resp tftp.Packet, cfg tftp.Config) (Accepted, error) {
	switch p := resp.(type) {
	case *tftp.OAck:
		return reconcileOAck(p, cfg)
	case *tftp.Ack:
		if p.BlockNum != 0 {
			return Accepted{}, tftp.NewProtocolError("send", tftp.ErrIllegalTftpOp, "unexpected ack block number during negotiation")
		}

		return Accepted{BlockSize: tftp.MaxPayloadSize, Timeout: int(cfg.Timeout.Seconds())}, nil
	case *tftp.Error:
		return Accepted{}, tftp.NewProtocolError("send", p.ErrorCode, p.ErrMsg)
	default:
		return Accepted{}, tftp.NewProtocolError("send", tftp.ErrIllegalTftpOp, "unexpected response opcode during negotiation")
	}
}

// ClientAcceptReceive interprets the server's answer to an RRQ: OACK, or an
// immediate DATA(1) meaning the peer never understood options at all.
func ClientAcceptReceive(resp tftp.Packet, cfg tftp.Config) (Accepted, error) {
	switch p := resp.(type) {
	case *tftp.OAck:
		return reconcileOAck(p, cfg)
	case *tftp.Data:
		if p.BlockNum != 1 {
			return Accepted{}, tftp.NewProtocolError("receive", tftp.ErrIllegalTftpOp, "unexpected first block number")
		}

		return Accepted{
			BlockSize:    uint16(len(p.Payload)),
			Timeout:      int(cfg.Timeout.Seconds()),
			FirstPayload: p.Payload,
		}, nil
	case *tftp.Error:
		return Accepted{}, tftp.NewProtocolError("receive", p.ErrorCode, p.ErrMsg)
	default:
		return Accepted{}, tftp.NewProtocolError("receive", tftp.ErrIllegalTftpOp, "unexpected response opcode during negotiation")
	}
}

func reconcileOAck(o *tftp.OAck, cfg tftp.Config) (Accepted, error) {
	acc := Accepted{
		BlockSize:           tftp.MaxPayloadSize,
		Timeout:             int(cfg.Timeout.Seconds()),
		NegotiationAccepted: true,
	}

	if v, ok := tftp.OptionValue(o.Options, tftp.OptBlksize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Accepted{}, tftp.NewProtocolError("negotiate", tftp.ErrNotDefined, "malformed blksize option")
		}

		if n > int(cfg.BlockSizeCap) {
			return Accepted{}, tftp.NewProtocolError("negotiate", tftp.ErrOptionNegotiation, "peer blksize exceeds local cap")
		}

		acc.BlockSize = uint16(n)
	}

	if v, ok := tftp.OptionValue(o.Options, tftp.OptTimeout); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Accepted{}, tftp.NewProtocolError("negotiate", tftp.ErrNotDefined, "malformed timeout option")
		}

		acc.Timeout = n
	}

	if v, ok := tftp.OptionValue(o.Options, tftp.OptTsize); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Accepted{}, tftp.NewProtocolError("negotiate", tftp.ErrNotDefined, "malformed tsize option")
		}

		acc.TotalSize = n
	}

	return acc, nil
}

// ServerReconcile computes the server's response to a parsed request: the
// option subset it honours (empty when the client proposed none, in which
// case the caller must skip OACK entirely per spec §4.2), the negotiated
// block size, and the negotiated timeout.
func ServerReconcile(req *tftp.Request, cfg tftp.Config, knownSize int64) (accepted []tftp.Option, blockSize uint16, timeout time.Duration) {
	if len(req.Options) == 0 {
		return nil, tftp.MaxPayloadSize, cfg.Timeout
	}

	blockSize = tftp.MaxPayloadSize
	timeout = cfg.Timeout

	if v, ok := tftp.OptionValue(req.Options, tftp.OptBlksize); ok {
		if n, err := strconv.Atoi(v); err == nil {
			bs := n
			if bs > int(cfg.BlockSizeCap) {
				bs = int(cfg.BlockSizeCap)
			}

			if bs < tftp.MinBlockSize {
				bs = tftp.MinBlockSize
			}

			blockSize = uint16(bs)
			accepted = append(accepted, tftp.Option{Key: tftp.OptBlksize, Value: strconv.Itoa(bs)})
		}
	}

	if v, ok := tftp.OptionValue(req.Options, tftp.OptTimeout); ok {
		if n, err := strconv.Atoi(v); err == nil {
			t := n
			if t < tftp.MinTimeout {
				t = tftp.MinTimeout
			}

			if t > tftp.MaxTimeout {
				t = tftp.MaxTimeout
			}

			timeout = time.Duration(t) * time.Second
			accepted = append(accepted, tftp.Option{Key: tftp.OptTimeout, Value: strconv.Itoa(t)})
		}
	}

	if _, ok := tftp.OptionValue(req.Options, tftp.OptTsize); ok && req.Opcode_ == tftp.OpCodeRRQ {
		accepted = append(accepted, tftp.Option{Key: tftp.OptTsize, Value: strconv.FormatInt(knownSize, 10)})
	}

	return accepted, blockSize, timeout
}
