package pipeline

import (
	"context"
	"fmt"
	"io"
)

// ParallelSink runs a dedicated writer goroutine that drains pushed chunks
// to the sink stream in strict arrival order, so the network goroutine
// never blocks on disk writes between packets (spec §4.4).
type ParallelSink struct {
	chunks chan Chunk
	errs   chan error
	done   chan struct{}
}

// NewParallelSink starts the writer goroutine over w.
func NewParallelSink(ctx context.Context, w io.Writer, blockSize int, maxQueueBytes int64) *ParallelSink {
	depth := queueDepth(maxQueueBytes, blockSize)

	s := &ParallelSink{
		chunks: make(chan Chunk, depth),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	go s.run(ctx, w)

	return s
}

func (s *ParallelSink) run(ctx context.Context, w io.Writer) {
	defer close(s.done)

	for {
		select {
		case c, ok := <-s.chunks:
			if !ok {
				return
			}

			if _, err := w.Write(c.Data); err != nil {
				select {
				case s.errs <- fmt.Errorf("error while writing sink stream: %w", err):
				default:
				}

				return
			}

			if c.Last {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Push hands a chunk to the writer goroutine, blocking if the queue is full
// (the back-pressure the network thread must respect per spec §4.4).
func (s *ParallelSink) Push(ctx context.Context, c Chunk) error {
	cp := make([]byte, len(c.Data))
	copy(cp, c.Data)

	select {
	case s.chunks <- Chunk{Data: cp, Last: c.Last}:
		return nil
	case err := <-s.errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals the writer goroutine to stop accepting new chunks and waits
// for it to drain anything already queued.
func (s *ParallelSink) Close() error {
	close(s.chunks)
	<-s.done

	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}
