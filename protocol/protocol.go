// Package protocol implements the telemetry wire format: Klipper style
// frames (length, sequence, payload, CRC16, sync byte) carrying VLQ encoded
// acquisition messages.
package protocol

// Version is the telemetry protocol version reported in the hello message.
const Version = "0.1.0"

// Frame layout constants
const (
	MessageMax = 512 // Receive window unit; frames themselves are at most MessageLengthMax

	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	// Message sequence masks
	MessageSeqMask = 0x0F
)

// Message is one validated frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}
