package mesh

import (
	"io"
	"sync"

	"github.com/vx-labs/grid/channel/mesh/pb"
)

// chunkWriter cuts a state stream into chunks of at most size bytes. A producer failure
// is sent to the consumer as a final chunk carrying the error message.
type chunkWriter struct {
	mtx    sync.Mutex
	send   func(*pb.StateChunk) error
	size   int
	buf    []byte
	closed bool
	err    error
	done   chan struct{}
}

func newChunkWriter(size int, send func(*pb.StateChunk) error) *chunkWriter {
	if size <= 0 {
		size = defaultChunkSize
	}
	return &chunkWriter{
		send: send,
		size: size,
		buf:  make([]byte, 0, size),
		done: make(chan struct{}),
	}
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.closed {
		if w.err != nil {
			return 0, w.err
		}
		return 0, io.ErrClosedPipe
	}
	written := 0
	for len(p) > 0 {
		n := w.size - len(w.buf)
		if n > len(p) {
			n = len(p)
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		written += n
		if len(w.buf) == w.size {
			if err := w.flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (w *chunkWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	chunk := make([]byte, len(w.buf))
	copy(chunk, w.buf)
	w.buf = w.buf[:0]
	if err := w.send(&pb.StateChunk{Data: chunk}); err != nil {
		w.finish(err)
		return err
	}
	return nil
}

func (w *chunkWriter) finish(err error) {
	if w.closed {
		return
	}
	w.closed = true
	w.err = err
	close(w.done)
}

func (w *chunkWriter) Close() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.closed {
		return w.err
	}
	err := w.flush()
	w.finish(err)
	return err
}

func (w *chunkWriter) CloseWithError(cause error) error {
	if cause == nil {
		return w.Close()
	}
	w.mtx.Lock()
	defer w.mtx.Unlock()
	if w.closed {
		return w.err
	}
	w.buf = w.buf[:0]
	err := w.send(&pb.StateChunk{Error: cause.Error()})
	w.finish(err)
	return err
}

// abort stops the writer without sending anything else.
func (w *chunkWriter) abort(err error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.finish(err)
}

// Err returns the error the stream ended with, once done is closed.
func (w *chunkWriter) Err() error {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.err
}
