package protocol

import (
	"errors"
	"io"
	"sync"
	"time"
)

// FrameReader reads frames from a port in a background goroutine and
// delivers them on a channel. It is the host side of the telemetry link.
type FrameReader struct {
	port io.Reader

	mu      sync.Mutex
	input   *FifoBuffer
	decoder FrameDecoder

	frames chan *Message
	err    error

	stopChan chan struct{}
	doneChan chan struct{}
	once     sync.Once
}

// NewFrameReader starts reading from port. depth is the number of decoded
// frames buffered before the oldest is dropped.
func NewFrameReader(port io.Reader, depth int) *FrameReader {
	if depth <= 0 {
		depth = 64
	}
	r := &FrameReader{
		port:     port,
		input:    NewFifoBuffer(4 * MessageMax),
		frames:   make(chan *Message, depth),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// Frames returns the channel of decoded frames. It is closed when the port
// reaches EOF or the reader is closed.
func (r *FrameReader) Frames() <-chan *Message {
	return r.frames
}

func (r *FrameReader) readLoop() {
	defer close(r.doneChan)
	defer close(r.frames)

	buffer := make([]byte, 256)
	for {
		select {
		case <-r.stopChan:
			return
		default:
		}

		n, err := r.port.Read(buffer)
		if n > 0 {
			r.feed(buffer[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (r *FrameReader) feed(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(data) > 0 {
		n := r.input.Write(data)
		data = data[n:]
		r.decoder.Decode(r.input, r.deliver)
		if n == 0 && len(data) > 0 {
			// A full buffer with no frame in it is garbage.
			r.input.Pop(r.input.Available())
		}
	}
}

func (r *FrameReader) deliver(msg *Message) {
	select {
	case r.frames <- msg:
	default:
		// Channel full, drop oldest
		select {
		case <-r.frames:
		default:
		}
		r.frames <- msg
	}
}

// Stats returns the decoder counters.
func (r *FrameReader) Stats() DecoderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decoder.Stats()
}

// Err returns the last read error other than EOF.
func (r *FrameReader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops the read loop. A Read blocked in the port returns only when
// the port itself is closed, so callers close the port afterwards.
func (r *FrameReader) Close() {
	r.once.Do(func() { close(r.stopChan) })
}

// Done is closed when the read loop has exited.
func (r *FrameReader) Done() <-chan struct{} {
	return r.doneChan
}
