package tftp

import (
	"bytes"
	"encoding"
	"encoding/binary"
)

// Packet is the common contract for the six TFTP packet kinds. It composes
// the standard library's binary marshalling interfaces the way the
// teacher's pkg/types package already did per-type.
type Packet interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
	Opcode() OpCode
}

// DecodePacket inspects the two-byte opcode and decodes into the matching
// concrete type. It is the entrypoint the driver and negotiator use instead
// of unmarshalling into a guessed type and checking the error, which is
// what every call site in the teacher repo did by hand.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < 2 {
		return nil, ErrMalformedPacket
	}

	op := OpCode(binary.BigEndian.Uint16(b[:2]))

	var pkt Packet

	switch op {
	case OpCodeRRQ, OpCodeWRQ:
		pkt = &Request{}
	case OpCodeDATA:
		pkt = &Data{}
	case OpCodeACK:
		pkt = &Ack{}
	case OpCodeError:
		pkt = &Error{}
	case OpCodeOAck:
		pkt = &OAck{}
	default:
		return nil, ErrMalformedPacket
	}

	if err := pkt.UnmarshalBinary(b); err != nil {
		return nil, err
	}

	return pkt, nil
}

func readOpcode(b *bytes.Buffer) (OpCode, error) {
	var op OpCode
	if err := binary.Read(b, binary.BigEndian, &op); err != nil {
		return 0, ErrMalformedPacket
	}

	return op, nil
}
