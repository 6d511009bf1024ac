package config

import (
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

// ToLoggingConfig converts LoggingConfig to logging.Config for use with
// the internal/logging package.
//
// The conversion applies these rules:
//   - Level is copied directly
//   - Format "structured" or "json" becomes JSON, anything else console
//   - If File is set, Output becomes "file", otherwise "stderr"
func (lc *LoggingConfig) ToLoggingConfig() logging.Config {
	output := logging.OutputStderr
	if lc.File != "" {
		output = logging.OutputFile
	}

	format := logging.FormatConsole
	switch lc.Format {
	case "", "json", "structured":
		format = logging.FormatJSON
	}

	return logging.Config{
		Level:  lc.Level,
		Format: format,
		Output: output,
		File:   lc.File,
		Caller: lc.Caller,
	}
}
