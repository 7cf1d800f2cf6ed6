package tftp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Ack acknowledges the given block number. Ack(0) confirms option
// negotiation (or a write request with no options proposed).
type Ack struct {
	BlockNum uint16
}

func (a *Ack) Opcode() OpCode { return OpCodeACK }

func (a *Ack) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	b.Grow(4)

	op := OpCodeACK
	if err := binary.Write(b, binary.BigEndian, &op); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if err := binary.Write(b, binary.BigEndian, &a.BlockNum); err != nil {
		return nil, fmt.Errorf("error while writing block#: %w", err)
	}

	return b.Bytes(), nil
}

func (a *Ack) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return ErrMalformedPacket
	}

	b := bytes.NewBuffer(data)

	op, err := readOpcode(b)
	if err != nil {
		return err
	}

	if op != OpCodeACK {
		return ErrWrongOpCode
	}

	if err := binary.Read(b, binary.BigEndian, &a.BlockNum); err != nil {
		return fmt.Errorf("error while reading block#: %w", err)
	}

	return nil
}
