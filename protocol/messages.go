package protocol

import "errors"

// Message IDs, the first VLQ of every payload.
const (
	MsgHello    = 0 // version, unit count
	MsgUnitInfo = 1 // unit, name, channels, period
	MsgSamples  = 2 // unit, seq, clock, offset, total, values...
	MsgEvent    = 3 // kind, unit, clock, seq, misses
)

var (
	ErrUnknownMessage = errors.New("unknown message id")
	ErrBadMessage     = errors.New("malformed message")
)

// Hello announces the device and its unit count.
type Hello struct {
	Version string
	Units   uint8
}

// UnitInfo describes one acquisition unit.
type UnitInfo struct {
	Unit     uint8
	Name     string
	Channels []uint8
	Period   uint32
}

// Samples carries part of one completed transfer. A transfer larger than a
// frame is split into chunks; Offset is the index of Values[0] in the unit
// buffer and Total its length.
type Samples struct {
	Unit   uint8
	Seq    uint32
	Clock  uint32
	Offset uint16
	Total  uint16
	Values []uint16
}

// Last reports whether the chunk completes its transfer.
func (s *Samples) Last() bool {
	return int(s.Offset)+len(s.Values) >= int(s.Total)
}

// Event is a non-sample acquisition event (busy, errors, stop).
type Event struct {
	Kind   uint8
	Unit   uint8
	Clock  uint32
	Seq    uint32
	Misses uint16
}

// WriteHello sends a hello frame.
func (w *FrameWriter) WriteHello(m Hello) error {
	return w.EncodeFrame(func(out OutputBuffer) {
		EncodeVLQUint(out, MsgHello)
		EncodeVLQString(out, m.Version)
		EncodeVLQUint(out, uint32(m.Units))
	})
}

// WriteUnitInfo sends a unit description frame.
func (w *FrameWriter) WriteUnitInfo(m UnitInfo) error {
	return w.EncodeFrame(func(out OutputBuffer) {
		EncodeVLQUint(out, MsgUnitInfo)
		EncodeVLQUint(out, uint32(m.Unit))
		EncodeVLQString(out, m.Name)
		EncodeVLQBytes(out, m.Channels)
		EncodeVLQUint(out, m.Period)
	})
}

// WriteEvent sends an event frame.
func (w *FrameWriter) WriteEvent(m Event) error {
	return w.EncodeFrame(func(out OutputBuffer) {
		EncodeVLQUint(out, MsgEvent)
		EncodeVLQUint(out, uint32(m.Kind))
		EncodeVLQUint(out, uint32(m.Unit))
		EncodeVLQUint(out, m.Clock)
		EncodeVLQUint(out, m.Seq)
		EncodeVLQUint(out, uint32(m.Misses))
	})
}

// WriteSamples sends a completed transfer, split into as many frames as
// needed. It returns the number of frames written.
func (w *FrameWriter) WriteSamples(unit uint8, seq, clock uint32, values []uint16) (int, error) {
	total := len(values)
	if total > 0xFFFF {
		return 0, ErrFrameTooLong
	}

	frames := 0
	offset := 0
	for {
		header := vlqLen(MsgSamples) + vlqLen(int32(unit)) + vlqLen(int32(seq)) +
			vlqLen(int32(clock)) + vlqLen(int32(offset)) + vlqLen(int32(total))
		room := MessagePayloadMax - header

		end := offset
		for end < total {
			n := vlqLen(int32(values[end]))
			if n > room {
				break
			}
			room -= n
			end++
		}

		chunk := values[offset:end]
		start := offset
		err := w.EncodeFrame(func(out OutputBuffer) {
			EncodeVLQUint(out, MsgSamples)
			EncodeVLQUint(out, uint32(unit))
			EncodeVLQUint(out, seq)
			EncodeVLQUint(out, clock)
			EncodeVLQUint(out, uint32(start))
			EncodeVLQUint(out, uint32(total))
			for _, v := range chunk {
				EncodeVLQUint(out, uint32(v))
			}
		})
		if err != nil {
			return frames, err
		}
		frames++

		offset = end
		if offset >= total {
			return frames, nil
		}
	}
}

// ParseFrame decodes every message in a frame payload and calls fn with a
// *Hello, *UnitInfo, *Samples or *Event.
func ParseFrame(payload []byte, fn func(msg interface{}) error) error {
	data := payload
	for len(data) > 0 {
		id, err := DecodeVLQUint(&data)
		if err != nil {
			return err
		}

		var msg interface{}
		switch id {
		case MsgHello:
			msg, err = decodeHello(&data)
		case MsgUnitInfo:
			msg, err = decodeUnitInfo(&data)
		case MsgSamples:
			// Samples run to the end of the frame.
			msg, err = decodeSamples(&data)
		case MsgEvent:
			msg, err = decodeEvent(&data)
		default:
			return ErrUnknownMessage
		}
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func decodeHello(data *[]byte) (*Hello, error) {
	version, err := DecodeVLQString(data)
	if err != nil {
		return nil, err
	}
	units, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	return &Hello{Version: version, Units: uint8(units)}, nil
}

func decodeUnitInfo(data *[]byte) (*UnitInfo, error) {
	unit, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	name, err := DecodeVLQString(data)
	if err != nil {
		return nil, err
	}
	channels, err := DecodeVLQBytes(data)
	if err != nil {
		return nil, err
	}
	period, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	chCopy := make([]uint8, len(channels))
	copy(chCopy, channels)
	return &UnitInfo{Unit: uint8(unit), Name: name, Channels: chCopy, Period: period}, nil
}

func decodeSamples(data *[]byte) (*Samples, error) {
	var hdr [5]uint32
	for i := range hdr {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	m := &Samples{
		Unit:   uint8(hdr[0]),
		Seq:    hdr[1],
		Clock:  hdr[2],
		Offset: uint16(hdr[3]),
		Total:  uint16(hdr[4]),
	}
	for len(*data) > 0 {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		m.Values = append(m.Values, uint16(v))
	}
	if int(m.Offset)+len(m.Values) > int(m.Total) {
		return nil, ErrBadMessage
	}
	return m, nil
}

func decodeEvent(data *[]byte) (*Event, error) {
	var f [5]uint32
	for i := range f {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		f[i] = v
	}
	return &Event{
		Kind:   uint8(f[0]),
		Unit:   uint8(f[1]),
		Clock:  f[2],
		Seq:    f[3],
		Misses: uint16(f[4]),
	}, nil
}
