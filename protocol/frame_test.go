package protocol

import (
	"bytes"
	"testing"
	"time"
)

func decodeAll(t *testing.T, stream []byte) ([]interface{}, DecoderStats) {
	t.Helper()
	var dec FrameDecoder
	var msgs []interface{}

	fifo := NewFifoBuffer(4 * MessageMax)
	for len(stream) > 0 {
		n := fifo.Write(stream)
		stream = stream[n:]
		dec.Decode(fifo, func(m *Message) {
			err := ParseFrame(m.Payload, func(msg interface{}) error {
				msgs = append(msgs, msg)
				return nil
			})
			if err != nil {
				t.Errorf("ParseFrame failed: %v", err)
			}
		})
	}
	return msgs, dec.Stats()
}

func TestFrameWriterLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	if err := w.EncodeFrame(func(out OutputBuffer) { out.Output([]byte{0x01, 0x02}) }); err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	frame := buf.Bytes()
	if len(frame) != 7 {
		t.Fatalf("frame length %d, want 7", len(frame))
	}
	if frame[MessagePositionLen] != 7 || frame[MessagePositionSeq] != MessageDest {
		t.Errorf("bad header %v", frame[:2])
	}
	crc := CRC16(frame[:4])
	if frame[4] != byte(crc>>8) || frame[5] != byte(crc) || frame[6] != MessageValueSync {
		t.Errorf("bad trailer %v", frame[4:])
	}

	w.EncodeFrame(func(out OutputBuffer) {})
	if got := buf.Bytes()[7+MessagePositionSeq]; got != MessageDest+1 {
		t.Errorf("second frame sequence 0x%02x, want 0x11", got)
	}
	if w.Frames() != 2 {
		t.Errorf("Frames() = %d", w.Frames())
	}
}

func TestFrameWriterRejectsLongPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	err := w.EncodeFrame(func(out OutputBuffer) { out.Output(make([]byte, MessagePayloadMax+1)) })
	if err != ErrFrameTooLong {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("oversized frame was written")
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	w.WriteHello(Hello{Version: Version, Units: 3})
	w.WriteUnitInfo(UnitInfo{Unit: 2, Name: "hotend", Channels: []uint8{4, 5, 17}, Period: 24000000})
	w.WriteEvent(Event{Kind: 3, Unit: 1, Clock: 0xFFFFFFF0, Seq: 12, Misses: 8})
	w.WriteSamples(2, 7, 123456, []uint16{0, 95, 4095})

	msgs, stats := decodeAll(t, buf.Bytes())
	if len(msgs) != 4 {
		t.Fatalf("decoded %d messages, want 4", len(msgs))
	}
	if stats.Frames != 4 || stats.Resyncs != 0 || stats.Lost != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if h, ok := msgs[0].(*Hello); !ok || h.Version != Version || h.Units != 3 {
		t.Errorf("hello = %+v", msgs[0])
	}
	if u, ok := msgs[1].(*UnitInfo); !ok || u.Name != "hotend" || len(u.Channels) != 3 || u.Channels[2] != 17 || u.Period != 24000000 {
		t.Errorf("unit info = %+v", msgs[1])
	}
	if e, ok := msgs[2].(*Event); !ok || e.Clock != 0xFFFFFFF0 || e.Misses != 8 || e.Kind != 3 {
		t.Errorf("event = %+v", msgs[2])
	}
	s, ok := msgs[3].(*Samples)
	if !ok || s.Unit != 2 || s.Seq != 7 || s.Clock != 123456 || !s.Last() {
		t.Fatalf("samples = %+v", msgs[3])
	}
	if len(s.Values) != 3 || s.Values[2] != 4095 {
		t.Errorf("sample values %v", s.Values)
	}
}

func TestWriteSamplesChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)

	values := make([]uint16, 100)
	for i := range values {
		values[i] = uint16(i * 41)
	}

	frames, err := w.WriteSamples(9, 1, 5000, values)
	if err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if frames < 2 {
		t.Fatalf("100 samples fit in %d frame(s)", frames)
	}

	msgs, _ := decodeAll(t, buf.Bytes())
	if len(msgs) != frames {
		t.Fatalf("decoded %d chunks, wrote %d frames", len(msgs), frames)
	}

	var joined []uint16
	for i, m := range msgs {
		s := m.(*Samples)
		if int(s.Offset) != len(joined) || s.Total != 100 {
			t.Errorf("chunk %d offset=%d total=%d", i, s.Offset, s.Total)
		}
		if s.Last() != (i == len(msgs)-1) {
			t.Errorf("chunk %d Last() = %v", i, s.Last())
		}
		joined = append(joined, s.Values...)
	}
	for i := range values {
		if joined[i] != values[i] {
			t.Fatalf("sample %d = %d, want %d", i, joined[i], values[i])
		}
	}
	t.Logf("100 samples in %d frames, %d bytes", frames, buf.Len())
}

func TestDecoderResyncsAfterCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	w.WriteEvent(Event{Kind: 1, Unit: 0})
	first := buf.Len()
	w.WriteEvent(Event{Kind: 2, Unit: 1})
	w.WriteEvent(Event{Kind: 3, Unit: 2})

	stream := append([]byte{0x42, 0x00, MessageValueSync}, buf.Bytes()...)
	stream[3+first+3] ^= 0xFF // corrupt the second frame's payload

	msgs, stats := decodeAll(t, stream)
	if len(msgs) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(msgs))
	}
	if msgs[0].(*Event).Unit != 0 || msgs[1].(*Event).Unit != 2 {
		t.Errorf("wrong frames survived: %+v %+v", msgs[0], msgs[1])
	}
	if stats.Resyncs < 2 {
		t.Errorf("expected resyncs for leading garbage and bad CRC, got %+v", stats)
	}
	if stats.Lost != 1 {
		t.Errorf("sequence gap should count one lost frame, got %d", stats.Lost)
	}
}

func TestDecoderWaitsForPartialFrame(t *testing.T) {
	var buf bytes.Buffer
	NewFrameWriter(&buf).WriteEvent(Event{Kind: 1, Unit: 4})
	frame := buf.Bytes()

	var dec FrameDecoder
	fifo := NewFifoBuffer(256)
	got := 0

	fifo.Write(frame[:4])
	dec.Decode(fifo, func(*Message) { got++ })
	if got != 0 || fifo.Available() != 4 {
		t.Fatalf("partial frame consumed: got=%d avail=%d", got, fifo.Available())
	}

	fifo.Write(frame[4:])
	dec.Decode(fifo, func(*Message) { got++ })
	if got != 1 || !fifo.IsEmpty() {
		t.Errorf("complete frame not decoded: got=%d avail=%d", got, fifo.Available())
	}
}

func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	for i := 0; i < 5; i++ {
		w.WriteEvent(Event{Kind: 3, Unit: uint8(i)})
	}

	r := NewFrameReader(bytes.NewReader(buf.Bytes()), 16)
	defer r.Close()

	var units []uint8
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case m, ok := <-r.Frames():
			if !ok {
				done = true
				break
			}
			ParseFrame(m.Payload, func(msg interface{}) error {
				units = append(units, msg.(*Event).Unit)
				return nil
			})
		case <-timeout:
			t.Fatal("reader did not finish")
		}
	}

	if len(units) != 5 || units[4] != 4 {
		t.Errorf("read units %v", units)
	}
	if r.Stats().Frames != 5 {
		t.Errorf("stats %+v", r.Stats())
	}
}
