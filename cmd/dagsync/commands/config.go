package commands

import (
	"github.com/mosaicnetworks/dagsync/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Dagsync     config.Config `mapstructure:",squash"`
	ProfileAddr string        `mapstructure:"pprof-listen"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Dagsync:     *config.NewDefaultConfig(),
		ProfileAddr: "",
	}
}
