package tftp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Request is an RRQ or WRQ packet: filename, mode, and an ordered option
// list (RFC 2347 §2). Mode is matched case-insensitively; only "octet" is
// accepted, per spec §1's non-goals.
type Request struct {
	Opcode_  OpCode
	Filename string
	Mode     string
	Options  []Option
}

func (r *Request) Opcode() OpCode { return r.Opcode_ }

func (r *Request) MarshalBinary() ([]byte, error) {
	if err := ValidateFilename(r.Filename); err != nil {
		return nil, err
	}

	b := new(bytes.Buffer)
	b.Grow(2 + len(r.Filename) + 1 + len(r.Mode) + 1)

	if err := binary.Write(b, binary.BigEndian, &r.Opcode_); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if err := writeCString(b, r.Filename); err != nil {
		return nil, fmt.Errorf("error while writing filename: %w", err)
	}

	if err := writeCString(b, r.Mode); err != nil {
		return nil, fmt.Errorf("error while writing mode: %w", err)
	}

	if err := EncodeOptions(b, r.Options); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func (r *Request) UnmarshalBinary(data []byte) error {
	b := bytes.NewBuffer(data)

	op, err := readOpcode(b)
	if err != nil {
		return err
	}

	if op != OpCodeRRQ && op != OpCodeWRQ {
		return ErrWrongOpCode
	}

	r.Opcode_ = op

	filename, err := readCString(b)
	if err != nil {
		return fmt.Errorf("error while reading filename: %w", err)
	}

	if err := ValidateFilename(filename); err != nil {
		return err
	}

	r.Filename = filename

	mode, err := readCString(b)
	if err != nil {
		return fmt.Errorf("error while reading mode: %w", err)
	}

	if !strings.EqualFold(mode, ModeOctet) {
		return fmt.Errorf("%w: unsupported transfer mode %q", ErrMalformedPacket, mode)
	}

	r.Mode = mode

	opts, err := DecodeOptions(b)
	if err != nil {
		return err
	}

	r.Options = opts

	return nil
}
