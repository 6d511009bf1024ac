package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

// setupLogging builds the command logger from cfg and the global flags and
// stores it, together with the trace ID, in the command context.
//
// --debug sends console output to stderr instead of the log file. The log
// file location is announced only with --verbose. SF_FLOW_TRACE_ID lets a
// wrapper script correlate several runs under one trace.
func setupLogging(cmd *cobra.Command, cfg *config.Config, flags globalFlags, lookupEnv func(string) (string, bool)) *logging.LogPathResult {
	loggingCfg := cfg.Logging
	if flags.debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = "console"
		loggingCfg.File = ""
	}

	result := logging.NewLoggerWithPath(loggingCfg.ToLoggingConfig())
	logger = logging.ComponentLogger(result.Logger, "cli")

	switch {
	case result.FallbackUsed:
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	case result.UsingFile && flags.verbose:
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	}

	ctx := cmd.Context()
	traceID, ok := lookupEnv(logging.EnvTraceID)
	if !ok || traceID == "" {
		traceID = logging.GetOrGenerateTraceID(ctx)
	}
	ctx = logging.ContextWithTraceID(ctx, traceID)
	ctx = logger.WithContext(ctx)
	cmd.SetContext(ctx)

	logger.Info().Ctx(ctx).
		Str("command", cmd.CommandPath()).
		Str("environment", cfg.Environment()).
		Str("auth_method", cfg.Auth.Method).
		Str("api_version", cfg.API.Version).
		Msg("command started")

	return &result
}

// cleanupLogging records how long the command ran and closes the log file.
func cleanupLogging(cmd *cobra.Command, logResult *logging.LogPathResult, started time.Time) error {
	logger.Debug().Ctx(cmd.Context()).
		Str("command", cmd.CommandPath()).
		Dur("duration", time.Since(started)).
		Msg("command finished")
	return logResult.Close()
}
