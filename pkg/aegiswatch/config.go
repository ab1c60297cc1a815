package aegiswatch

import (
	"github.com/ghalamif/AegisWatch/internal/app/config"
	"github.com/ghalamif/AegisWatch/internal/ports"
)

// Config re-exports the agent configuration so embedding programs can build
// or tweak it in code.
type Config = config.Config

type (
	// Policy controls retries, keepalive and the fetch windows.
	Policy = ports.Policy
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// TimescaleConfig configures the optional archive.
	TimescaleConfig = config.TimescaleConfig
)

// LoadConfig reads param.json (JSON with comments) or a YAML file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
