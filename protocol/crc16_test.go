package protocol

import (
	"testing"

	"github.com/sigurn/crc16"
)

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{[]byte{}, 0xFFFF},
		{[]byte{0x00}, 0x0F87},
		{[]byte{0xFF}, 0x00FF},
		{[]byte{5, MessageDest}, 0x9E81},
		{[]byte{0x01, 0x02, 0x03, 0x04, 0x05}, 0xDD13},
		{[]byte("123456789"), 0x6F91}, // CRC-16/MCRF4XX check value
	}

	for i, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("Test case %d: CRC16(%v) = 0x%04X, want 0x%04X", i, tc.data, got, tc.expected)
		}
	}
}

func TestCRC16Different(t *testing.T) {
	// Test that different inputs produce different outputs
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}

func TestCRC16MatchesTableDriven(t *testing.T) {
	table := crc16.MakeTable(crc16.CRC16_MCRF4XX)

	data := make([]byte, MessageLengthMax)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	for n := 0; n <= len(data); n++ {
		if got, want := CRC16(data[:n]), crc16.Checksum(data[:n], table); got != want {
			t.Fatalf("len %d: CRC16 = 0x%04X, table = 0x%04X", n, got, want)
		}
	}
}
