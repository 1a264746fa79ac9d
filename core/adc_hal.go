package core

// Transfer is an in-flight converter+DMA transfer.
type Transfer interface {
	// Done reports whether the hardware has finished filling the buffer.
	Done() bool

	// Wait finalizes a finished transfer and hands the filled buffer back.
	// It is only called after Done returned true, so it must not block
	// beyond the hardware latch time.
	Wait() ([]uint16, error)
}

// Converter is the shared ADC + DMA channel as the core sees it. Register
// level programming lives behind it.
type Converter interface {
	// Listen registers the transfer-complete callback. The callback runs in
	// interrupt context (or a goroutine standing in for it).
	Listen(onComplete func())

	// Reconfigure reprograms sample times and the regular sequence.
	Reconfigure(cfg ChannelConfig) error

	// StartTransfer starts filling buf with one or more scans of the
	// programmed sequence. It must return without waiting and must never
	// invoke the completion callback before returning.
	StartTransfer(buf []uint16) (Transfer, error)
}
