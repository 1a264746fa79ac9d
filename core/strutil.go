package core

// Number formatting without fmt, which TinyGo firmware avoids.

// utoa renders n in decimal.
func utoa(n uint32) string {
	var buf [10]byte
	pos := len(buf)
	for {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			return string(buf[pos:])
		}
	}
}

// itoa renders a signed n in decimal.
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

// joinSamples renders samples as a comma separated list
func joinSamples(samples []uint16) string {
	if len(samples) == 0 {
		return "-"
	}
	out := utoa(uint32(samples[0]))
	for _, s := range samples[1:] {
		out += "," + utoa(uint32(s))
	}
	return out
}
