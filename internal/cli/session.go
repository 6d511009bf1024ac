package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunyxi/salesforce-flow-cli/internal/auth"
	"github.com/sunyxi/salesforce-flow-cli/internal/config"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
	"github.com/sunyxi/salesforce-flow-cli/internal/metrics"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

//nolint:gochecknoglobals // Overridden in tests.
var nowFunc = time.Now

// session bundles the clients a command needs to talk to one org.
type session struct {
	cfg      *config.Config
	tooling  *salesforce.ToolingClient
	flows    *salesforce.FlowClient
	engine   *engine.Engine
	recorder *metrics.Recorder
}

// newSession validates the global configuration and wires auth, the Tooling
// API client, the batch processor and the flow engine together.
func newSession(ctx context.Context) (*session, error) {
	cfg := config.GetGlobalConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.APITimeout()}
	tokens, err := auth.New(cfg.Auth, httpClient)
	if err != nil {
		return nil, err
	}

	tooling, err := salesforce.NewToolingClient(tokens,
		salesforce.WithHTTPClient(httpClient),
		salesforce.WithAPIVersion(cfg.API.Version))
	if err != nil {
		return nil, err
	}
	flows := salesforce.NewFlowClient(tooling)

	batchCfg, err := cfg.BatchConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid batch configuration: %w", err)
	}
	base := logging.FromContext(ctx)
	processor, err := batch.NewProcessor(batchCfg, batch.WithLogger(logging.ComponentLogger(*base, "batch")))
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	return &session{
		cfg:      cfg,
		tooling:  tooling,
		flows:    flows,
		engine:   engine.New(flows, processor, engine.WithRecorder(recorder)),
		recorder: recorder,
	}, nil
}

// authenticate forces a login so credential problems surface before any work starts.
func (s *session) authenticate(ctx context.Context) (string, error) {
	instance, err := s.tooling.InstanceURL(ctx)
	if err != nil {
		return "", err
	}
	logger.Info().Ctx(ctx).
		Str("method", s.cfg.Auth.Method).
		Str("environment", s.cfg.Environment()).
		Msg("authenticated")
	return instance, nil
}

// newTracker builds a progress tracker honoring the CLI output settings.
func (s *session) newTracker(cmd *cobra.Command, total int) *progressTracker {
	return newProgressTracker(cmd.OutOrStdout(), trackerOptions{
		showProgressBar: s.cfg.CLI.ShowProgressBar,
		showDetails:     s.cfg.CLI.ShowDetailedOutput,
		color:           s.cfg.CLI.ColorOutput,
		total:           total,
	})
}

// cmdStyles returns output styles for cmd's stdout.
func cmdStyles(cmd *cobra.Command) styles {
	return newStyles(cmd.OutOrStdout(), config.GetGlobalConfig().CLI.ColorOutput)
}

// isVerbose reports whether --verbose was given.
func isVerbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

// isQuiet reports whether --quiet was given.
func isQuiet(cmd *cobra.Command) bool {
	q, _ := cmd.Flags().GetBool("quiet")
	return q
}
