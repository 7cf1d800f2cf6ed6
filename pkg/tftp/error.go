package tftp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Error is the wire ERROR packet (opcode 5): a TFTP error code plus a
// NUL-terminated human message.
type Error struct {
	ErrorCode ErrCode
	ErrMsg    string
}

func (e *Error) Opcode() OpCode { return OpCodeError }

func (e *Error) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)
	b.Grow(4 + len(e.ErrMsg) + 1)

	op := OpCodeError
	if err := binary.Write(b, binary.BigEndian, &op); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if err := binary.Write(b, binary.BigEndian, &e.ErrorCode); err != nil {
		return nil, fmt.Errorf("error while writing error code: %w", err)
	}

	if err := writeCString(b, e.ErrMsg); err != nil {
		return nil, fmt.Errorf("error while writing error message: %w", err)
	}

	return b.Bytes(), nil
}

func (e *Error) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return ErrMalformedPacket
	}

	b := bytes.NewBuffer(data)

	op, err := readOpcode(b)
	if err != nil {
		return err
	}

	if op != OpCodeError {
		return ErrWrongOpCode
	}

	if err := binary.Read(b, binary.BigEndian, &e.ErrorCode); err != nil {
		return fmt.Errorf("error while reading error code: %w", err)
	}

	msg, err := readCString(b)
	if err != nil {
		return fmt.Errorf("error while reading error message: %w", err)
	}

	e.ErrMsg = msg

	return nil
}
