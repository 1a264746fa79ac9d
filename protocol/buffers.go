package protocol

// InputBuffer is a window of received bytes the decoder consumes from.
type InputBuffer interface {
	// Data returns the unconsumed bytes. The slice is valid until the next
	// Write or Pop.
	Data() []byte

	// Available returns len(Data()).
	Available() int

	// Pop discards n bytes from the front.
	Pop(n int)
}

// OutputBuffer receives the bytes of the frame being built.
type OutputBuffer interface {
	// Output appends data.
	Output(data []byte)

	// CurPosition returns the number of bytes written so far.
	CurPosition() int

	// Update overwrites an already written byte.
	Update(pos int, val byte)

	// DataSince returns the bytes from pos to the current position.
	DataSince(pos int) []byte
}

// ScratchOutput builds one frame in a fixed array so framing never
// allocates on the device. Bytes beyond MessageLengthMax are dropped and
// the overflow is remembered until Reset.
type ScratchOutput struct {
	buf      [MessageLengthMax]byte
	pos      int
	overflow bool
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Overflowed reports whether output was dropped since the last Reset.
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

// Result returns the frame built so far.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset starts a new frame.
func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// FifoBuffer holds received bytes for the frame decoder. Unconsumed bytes
// stay contiguous: a write that does not fit behind them first moves them
// to the front, so Data never copies.
type FifoBuffer struct {
	buf   []byte
	start int
	end   int
}

// NewFifoBuffer creates a buffer holding up to capacity bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count.
func (f *FifoBuffer) Write(data []byte) int {
	if len(data) > len(f.buf)-f.end && f.start > 0 {
		f.end = copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

func (f *FifoBuffer) Data() []byte {
	return f.buf[f.start:f.end]
}

func (f *FifoBuffer) Available() int {
	return f.end - f.start
}

func (f *FifoBuffer) Pop(n int) {
	if n >= f.end-f.start {
		f.Reset()
		return
	}
	f.start += n
}

// IsEmpty reports whether every byte has been consumed.
func (f *FifoBuffer) IsEmpty() bool {
	return f.start == f.end
}

// Reset discards everything.
func (f *FifoBuffer) Reset() {
	f.start = 0
	f.end = 0
}
