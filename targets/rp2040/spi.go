//go:build rp2040

package main

import (
	"machine"

	"sharedadc/extadc"
)

// spiBusConfig names the pins of one SPI bus.
type spiBusConfig struct {
	spi  *machine.SPI // SPI controller (SPI0 or SPI1)
	sck  machine.Pin  // Clock pin
	mosi machine.Pin  // Master Out Slave In
	miso machine.Pin  // Master In Slave Out
	cs   machine.Pin  // Chip select of the converter
}

// spi0a is the bus the external MCP3008 hangs off.
var spi0a = spiBusConfig{
	spi:  machine.SPI0,
	sck:  machine.GPIO2,
	mosi: machine.GPIO3,
	miso: machine.GPIO0,
	cs:   machine.GPIO1,
}

// mcp3008Rate is the SPI clock; the part is rated for 1.35MHz at 3.3V.
const mcp3008Rate = 1000000

// NewExternalConverter configures SPI0 and returns the MCP3008 on it.
func NewExternalConverter(bus spiBusConfig) (*extadc.MCP3008, error) {
	err := bus.spi.Configure(machine.SPIConfig{
		Frequency: mcp3008Rate,
		SCK:       bus.sck,
		SDO:       bus.mosi, // SDO = Serial Data Out (MOSI)
		SDI:       bus.miso, // SDI = Serial Data In (MISO)
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}

	bus.cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	bus.cs.High()

	return extadc.NewMCP3008(bus.spi, bus.cs), nil
}
