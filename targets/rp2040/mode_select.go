//go:build rp2040

package main

// ModeConfig determines which converter the units share
type ModeConfig struct {
	// External selects the MCP3008 on SPI0 instead of the on-chip ADC
	External bool
}

// GetMode returns the current mode configuration
// This can be modified at compile time or runtime
func GetMode() ModeConfig {
	return ModeConfig{
		External: false,
	}
}
