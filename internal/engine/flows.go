// Package engine runs flow operations in bulk through the batch core.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
	"github.com/sunyxi/salesforce-flow-cli/internal/metrics"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

// Operation names a bulk flow operation.
type Operation string

// Supported operations. The string value is the label used in logs and progress lines.
const (
	OperationActivate   Operation = "activate"
	OperationDeactivate Operation = "deactivate"
	OperationStatus     Operation = "status check"
)

// ErrUnsupportedOperation is returned by RunOperation for an unknown operation.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// FlowService is the remote collaborator the engine drives. salesforce.FlowClient implements it.
type FlowService interface {
	ActivateFlow(ctx context.Context, name string, version *int) (salesforce.ActivationResult, error)
	DeactivateFlow(ctx context.Context, name string) (salesforce.ActivationResult, error)
	GetFlowStatus(ctx context.Context, name string) (salesforce.FlowStatus, error)
	ValidateFlowsExist(ctx context.Context, names []string) (map[string]bool, error)
}

// ActivationPayload is attached to activate outcomes.
type ActivationPayload struct {
	PreviousVersion int `json:"previous_version"`
	NewVersion      int `json:"new_version"`
}

// DeactivationPayload is attached to deactivate outcomes.
type DeactivationPayload struct {
	PreviousVersion int `json:"previous_version"`
}

// StatusPayload is attached to status outcomes.
type StatusPayload struct {
	salesforce.FlowStatus
}

// Validation partitions names by existence.
type Validation struct {
	Existing    []string        `json:"existing_flows"`
	NonExistent []string        `json:"non_existent_flows"`
	Results     map[string]bool `json:"validation_results"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder attaches a metrics recorder that observes every run.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock replaces the clock used for metrics timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs bulk flow operations.
type Engine struct {
	flows     FlowService
	processor *batch.Processor
	recorder  *metrics.Recorder
	now       func() time.Time
}

// New creates an Engine. A nil processor selects batch defaults.
func New(flows FlowService, processor *batch.Processor, opts ...Option) *Engine {
	if processor == nil {
		processor = batch.NewProcessorWithDefaults()
	}
	e := &Engine{flows: flows, processor: processor, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Processor returns the batch processor in use.
func (e *Engine) Processor() *batch.Processor {
	return e.processor
}

// Recorder returns the attached metrics recorder, if any.
func (e *Engine) Recorder() *metrics.Recorder {
	return e.recorder
}

// ActivateFlows activates every flow, at version when it is not nil and otherwise at the latest version.
func (e *Engine) ActivateFlows(ctx context.Context, names []string, version *int, sink batch.ProgressSink) batch.Result {
	return e.run(ctx, OperationActivate, names, e.activate(func(string) *int { return version }), sink)
}

// ActivateFlowsWithVersions activates each spec at its own version, falling back
// to globalVersion and then to the latest version.
func (e *Engine) ActivateFlowsWithVersions(
	ctx context.Context,
	specs []flowfile.FlowSpec,
	globalVersion *int,
	sink batch.ProgressSink,
) batch.Result {
	versions := make(map[string]*int, len(specs))
	for _, s := range specs {
		if _, seen := versions[s.Name]; !seen {
			versions[s.Name] = s.Version
		}
	}
	resolve := func(name string) *int {
		if v := versions[name]; v != nil {
			return v
		}
		return globalVersion
	}
	return e.run(ctx, OperationActivate, flowfile.Names(specs), e.activate(resolve), sink)
}

// DeactivateFlows deactivates every flow.
func (e *Engine) DeactivateFlows(ctx context.Context, names []string, sink batch.ProgressSink) batch.Result {
	return e.run(ctx, OperationDeactivate, names, e.deactivate, sink)
}

// GetFlowStatuses reads the status of every flow.
func (e *Engine) GetFlowStatuses(ctx context.Context, names []string, sink batch.ProgressSink) batch.Result {
	return e.run(ctx, OperationStatus, names, e.status, sink)
}

// RunOperation dispatches op by name. Activation uses the latest version.
func (e *Engine) RunOperation(ctx context.Context, op Operation, names []string, sink batch.ProgressSink) (batch.Result, error) {
	switch op {
	case OperationActivate:
		return e.ActivateFlows(ctx, names, nil, sink), nil
	case OperationDeactivate:
		return e.DeactivateFlows(ctx, names, sink), nil
	case OperationStatus:
		return e.GetFlowStatuses(ctx, names, sink), nil
	default:
		return batch.Result{}, fmt.Errorf("%w: %q", ErrUnsupportedOperation, op)
	}
}

// ValidateFlowsExist checks all names with a single lookup and partitions them, preserving input order.
func (e *Engine) ValidateFlowsExist(ctx context.Context, names []string) (Validation, error) {
	log := logging.FromContext(ctx)
	log.Info().Ctx(ctx).Str("component", "engine").Msgf("Validating %d flows exist...", len(names))

	results, err := e.flows.ValidateFlowsExist(ctx, names)
	if err != nil {
		return Validation{}, fmt.Errorf("validating flows: %w", err)
	}

	v := Validation{Existing: []string{}, NonExistent: []string{}, Results: results}
	for _, n := range names {
		if results[n] {
			v.Existing = append(v.Existing, n)
		} else {
			v.NonExistent = append(v.NonExistent, n)
		}
	}

	if len(v.NonExistent) > 0 {
		log.Warn().Ctx(ctx).
			Str("component", "engine").
			Strs("flows", v.NonExistent).
			Msgf("%d flows not found", len(v.NonExistent))
	}
	log.Info().Ctx(ctx).Str("component", "engine").Msgf("%d flows validated successfully", len(v.Existing))
	return v, nil
}

func (e *Engine) run(ctx context.Context, op Operation, names []string, fn batch.Operation, sink batch.ProgressSink) batch.Result {
	var recorderSink batch.ProgressSink
	if e.recorder != nil {
		recorderSink = e.recorder
	}

	result := e.processor.Run(ctx, names, fn, string(op), batch.MultiSink(sink, recorderSink))

	if e.recorder != nil {
		e.recorder.ObserveResult(string(op), result, e.now())
	}
	return result
}

func (e *Engine) activate(version func(name string) *int) batch.Operation {
	return func(ctx context.Context, name string) (batch.Outcome, error) {
		res, err := e.flows.ActivateFlow(ctx, name, version(name))
		if err != nil {
			return finalOutcome(name, OperationActivate, err)
		}
		payload := ActivationPayload{PreviousVersion: res.PreviousVersion, NewVersion: res.NewVersion}
		if res.Unchanged {
			return batch.AlreadyInState(name, batch.NoOpAlreadyActive, res.Message, payload), nil
		}
		return batch.Succeeded(name, res.Message, payload), nil
	}
}

func (e *Engine) deactivate(ctx context.Context, name string) (batch.Outcome, error) {
	res, err := e.flows.DeactivateFlow(ctx, name)
	if err != nil {
		return finalOutcome(name, OperationDeactivate, err)
	}
	payload := DeactivationPayload{PreviousVersion: res.PreviousVersion}
	if res.Unchanged {
		return batch.AlreadyInState(name, batch.NoOpAlreadyInactive, res.Message, payload), nil
	}
	return batch.Succeeded(name, res.Message, payload), nil
}

func (e *Engine) status(ctx context.Context, name string) (batch.Outcome, error) {
	st, err := e.flows.GetFlowStatus(ctx, name)
	if err != nil {
		return finalOutcome(name, OperationStatus, err)
	}
	return batch.Succeeded(name, fmt.Sprintf("Flow '%s' status retrieved", name), StatusPayload{FlowStatus: st}), nil
}

// finalOutcome turns errors that no retry can fix into a failed outcome and
// hands everything else back to the retry layer.
func finalOutcome(name string, op Operation, err error) (batch.Outcome, error) {
	switch {
	case errors.Is(err, salesforce.ErrAPIRestriction):
		return batch.Outcome{
			ID:      name,
			Message: err.Error(),
			Error:   salesforce.RestrictionCode,
		}, nil
	case errors.Is(err, salesforce.ErrFlowNotFound),
		errors.Is(err, salesforce.ErrNoVersions),
		errors.Is(err, salesforce.ErrInvalidVersion):
		return batch.Failed(name, string(op), err), nil
	default:
		return batch.Outcome{}, err
	}
}
