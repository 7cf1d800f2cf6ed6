package tftp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// OAck (opcode 6, RFC 2347 §2) conveys the server's accepted option subset
// back to the client, mirroring the option-list tail of Request.
type OAck struct {
	Options []Option
}

func (o *OAck) Opcode() OpCode { return OpCodeOAck }

func (o *OAck) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	op := OpCodeOAck
	if err := binary.Write(b, binary.BigEndian, &op); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if err := EncodeOptions(b, o.Options); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (o *OAck) UnmarshalBinary(data []byte) error {
	b := bytes.NewBuffer(data)

	op, err := readOpcode(b)
	if err != nil {
		return err
	}

	if op != OpCodeOAck {
		return ErrWrongOpCode
	}

	opts, err := DecodeOptions(b)
	if err != nil {
		return err
	}

	o.Options = opts

	return nil
}
