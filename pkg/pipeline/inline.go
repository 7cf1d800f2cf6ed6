package pipeline

import (
	"context"
	"io"
)

// InlineSource performs synchronous reads between packets: the network
// goroutine's own call stack does the disk I/O. Used when parallel I/O is
// disabled or the negotiated block size is too small for the handoff
// overhead to pay off (spec §4.4).
type InlineSource struct {
	r         io.Reader
	blockSize int
	buf       []byte
	eof       bool
}

func NewInlineSource(r io.Reader, blockSize int) *InlineSource {
	return &InlineSource{r: r, blockSize: blockSize, buf: make([]byte, blockSize)}
}

func (s *InlineSource) Next(ctx context.Context) (Chunk, error) {
	if s.eof {
		return Chunk{}, io.EOF
	}

	n, err := io.ReadFull(s.r, s.buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Chunk{}, err
	}

	last := n < s.blockSize
	if last {
		s.eof = true
	}

	out := make([]byte, n)
	copy(out, s.buf[:n])

	return Chunk{Data: out, Last: last}, nil
}

func (s *InlineSource) Close() error { return nil }

// InlineSink performs synchronous writes between packets.
type InlineSink struct {
	w io.Writer
}

func NewInlineSink(w io.Writer) *InlineSink {
	return &InlineSink{w: w}
}

func (s *InlineSink) Push(ctx context.Context, c Chunk) error {
	_, err := s.w.Write(c.Data)

	return err
}

func (s *InlineSink) Close() error { return nil }
