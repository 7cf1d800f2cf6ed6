package tftp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Data carries up to the negotiated block size of payload (spec §3; the
// 512-byte ceiling is only the classic, option-free default, unlike the
// teacher's MaxPayloadSize-only version).
type Data struct {
	BlockNum uint16
	Payload  []byte
	// MaxPayload is enforced by MarshalBinary as the negotiated block size;
	// callers that don't yet know it (e.g. tests) may leave it at zero to
	// skip the check.
	MaxPayload uint16
}

func (d *Data) Opcode() OpCode { return OpCodeDATA }

// MarshalBinary encodes the packet, rejecting a payload over MaxPayload.
func (d *Data) MarshalBinary() ([]byte, error) {
	if d.MaxPayload != 0 && len(d.Payload) > int(d.MaxPayload) {
		return nil, ErrPayloadTooLarge
	}

	b := new(bytes.Buffer)
	b.Grow(4 + len(d.Payload))

	op := OpCodeDATA
	if err := binary.Write(b, binary.BigEndian, &op); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if err := binary.Write(b, binary.BigEndian, &d.BlockNum); err != nil {
		return nil, fmt.Errorf("error while writing block#: %w", err)
	}

	if _, err := b.Write(d.Payload); err != nil {
		return nil, fmt.Errorf("error while writing payload: %w", err)
	}

	return b.Bytes(), nil
}

func (d *Data) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return ErrMalformedPacket
	}

	b := bytes.NewBuffer(data)

	op, err := readOpcode(b)
	if err != nil {
		return err
	}

	if op != OpCodeDATA {
		return ErrWrongOpCode
	}

	if err := binary.Read(b, binary.BigEndian, &d.BlockNum); err != nil {
		return fmt.Errorf("error while reading block#: %w", err)
	}

	d.Payload = data[4:]

	return nil
}
