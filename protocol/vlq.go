package protocol

import "errors"

// Integers travel as variable length quantities: 7 bits per byte, most
// significant group first, high bit set on every byte but the last. The
// first group is sign extended, so values in [-32, 96) take one byte.

var (
	ErrTruncated  = errors.New("message truncated")
	ErrVLQTooLong = errors.New("vlq longer than 5 bytes")
)

const vlqMaxLen = 5

// vlqLen returns the encoded size of v.
func vlqLen(v int32) int {
	n := 1
	if !(-(1<<26) <= v && v < (3<<26)) {
		n++
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		n++
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		n++
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		n++
	}
	return n
}

// EncodeVLQInt writes v.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [vlqMaxLen]byte
	n := vlqLen(v)
	for i := 0; i < n; i++ {
		b := byte(v>>(7*uint(n-1-i))) & 0x7F
		if i < n-1 {
			b |= 0x80
		}
		buf[i] = b
	}
	output.Output(buf[:n])
}

// EncodeVLQUint writes v; it shares the signed encoding.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances data past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	d := *data
	if len(d) == 0 {
		return 0, ErrTruncated
	}

	c := uint32(d[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}

	i := 1
	for c&0x80 != 0 {
		if i == len(d) {
			return 0, ErrTruncated
		}
		if i == vlqMaxLen {
			return 0, ErrVLQTooLong
		}
		c = uint32(d[i])
		v = v<<7 | c&0x7F
		i++
	}

	*data = d[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one unsigned value.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length prefixed byte string.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length prefixed byte string. The result aliases
// data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrTruncated
	}
	out := (*data)[:n]
	*data = (*data)[n:]
	return out, nil
}

// EncodeVLQString writes a length prefixed string.
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString reads a length prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
