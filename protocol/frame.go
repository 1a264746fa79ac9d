package protocol

import (
	"errors"
	"io"
	"sync"
)

var (
	ErrFrameTooLong = errors.New("frame payload too long")
	ErrShortWrite   = errors.New("incomplete frame write")
)

// FrameWriter frames payloads onto a byte stream. Each frame carries the
// next sequence number (0x10-0x1F, wrapping) so a reader can count lost
// frames. It is safe for concurrent use.
type FrameWriter struct {
	mu     sync.Mutex
	out    io.Writer
	seq    uint8
	output ScratchOutput
	frames uint32
}

// NewFrameWriter creates a writer starting at sequence MessageDest.
func NewFrameWriter(out io.Writer) *FrameWriter {
	return &FrameWriter{out: out, seq: MessageDest}
}

// EncodeFrame builds one frame from the bytes frameData writes and sends it.
func (w *FrameWriter) EncodeFrame(frameData func(output OutputBuffer)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.output.Reset()

	// Write header (length placeholder and sequence)
	w.output.Output([]byte{0, w.seq})

	frameData(&w.output)

	msgLen := w.output.CurPosition() + MessageTrailerSize
	if w.output.Overflowed() || msgLen > MessageLengthMax {
		return ErrFrameTooLong
	}
	w.output.Update(MessagePositionLen, uint8(msgLen))

	crc := CRC16(w.output.DataSince(0))
	w.output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	frame := w.output.Result()
	n, err := w.out.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrShortWrite
	}

	w.seq = ((w.seq + 1) & MessageSeqMask) | MessageDest
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *FrameWriter) Frames() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// DecoderStats counts what a FrameDecoder has seen.
type DecoderStats struct {
	Frames    uint32 // valid frames
	Resyncs   uint32 // times synchronization was lost
	Discarded uint32 // bytes skipped while resynchronizing
	Lost      uint32 // frames missing according to the sequence numbers
}

// FrameDecoder extracts frames from a byte stream, resynchronizing on the
// sync byte after corruption.
type FrameDecoder struct {
	unsynced bool
	haveSeq  bool
	lastSeq  uint8
	stats    DecoderStats
}

// Decode consumes every complete frame in input and calls fn for each. A
// partial frame is left in input for the next call.
func (d *FrameDecoder) Decode(input InputBuffer, fn func(msg *Message)) {
	data := input.Data()

	for len(data) > 0 {
		if d.unsynced {
			// Look for sync byte
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}

			if syncPos >= 0 {
				d.stats.Discarded += uint32(syncPos + 1)
				data = data[syncPos+1:]
				d.unsynced = false
			} else {
				d.stats.Discarded += uint32(len(data))
				data = nil
			}
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		msg := &Message{
			Length:   uint8(msgLen),
			Sequence: seq,
			Payload:  payload,
			CRC:      frameCRC,
		}
		data = data[msgLen:]

		if d.haveSeq {
			d.stats.Lost += uint32((seq - d.lastSeq - 1) & MessageSeqMask)
		}
		d.lastSeq = seq
		d.haveSeq = true
		d.stats.Frames++

		fn(msg)
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (d *FrameDecoder) desync() {
	d.unsynced = true
	d.stats.Resyncs++
}

// Stats returns the decoder counters.
func (d *FrameDecoder) Stats() DecoderStats {
	return d.stats
}
