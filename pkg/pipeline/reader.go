package pipeline

import (
	"context"
	"fmt"
	"io"
)

// ParallelSource runs a dedicated chunker goroutine that reads the source
// stream in blockSize chunks and pushes them onto a bounded channel, so the
// network goroutine never blocks on disk I/O between packets (spec §4.4).
type ParallelSource struct {
	blockSize int
	pool      *bufferPool
	chunks    chan Chunk
	errs      chan error
	done      chan struct{}
}

// NewParallelSource starts the chunker goroutine over r. maxQueueBytes
// bounds how many blockSize buffers may be in flight at once.
func NewParallelSource(ctx context.Context, r io.Reader, blockSize int, maxQueueBytes int64) *ParallelSource {
	depth := queueDepth(maxQueueBytes, blockSize)

	s := &ParallelSource{
		blockSize: blockSize,
		pool:      newBufferPool(blockSize, depth),
		chunks:    make(chan Chunk, depth),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	go s.run(ctx, r)

	return s
}

func (s *ParallelSource) run(ctx context.Context, r io.Reader) {
	defer close(s.done)
	defer close(s.chunks)

	for {
		buf := s.pool.get()

		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			s.errs <- fmt.Errorf("error while reading source stream: %w", err)

			return
		}

		last := n < s.blockSize

		select {
		case s.chunks <- Chunk{Data: buf[:n], Last: last}:
		case <-ctx.Done():
			return
		}

		if last {
			return
		}
	}
}

// Next blocks for the next chunk, returning io.EOF once the terminal chunk
// has already been delivered.
func (s *ParallelSource) Next(ctx context.Context) (Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if !ok {
			return Chunk{}, io.EOF
		}

		return c, nil
	case err := <-s.errs:
		return Chunk{}, err
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// Release returns a chunk's backing buffer to the pool once its payload has
// been fully consumed (copied into a DATA packet).
func (s *ParallelSource) Release(c Chunk) {
	if cap(c.Data) == s.blockSize {
		s.pool.put(c.Data[:s.blockSize])
	}
}

func (s *ParallelSource) Close() error {
	<-s.done

	return nil
}
