package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine"
	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
	"github.com/sunyxi/salesforce-flow-cli/internal/flowfile"
	"github.com/sunyxi/salesforce-flow-cli/internal/metrics"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

// fakeFlows is an in-memory FlowService.
type fakeFlows struct {
	mu       sync.Mutex
	active   map[string]int
	latest   map[string]int
	failures map[string][]error
	calls    map[string]int
	versions map[string]*int
}

func newFakeFlows() *fakeFlows {
	return &fakeFlows{
		active:   map[string]int{},
		latest:   map[string]int{},
		failures: map[string][]error{},
		calls:    map[string]int{},
		versions: map[string]*int{},
	}
}

func (f *fakeFlows) add(name string, active, latest int) {
	f.active[name] = active
	f.latest[name] = latest
}

// popFailure returns the next scripted failure for name, if any.
func (f *fakeFlows) popFailure(name string) error {
	f.calls[name]++
	if errs := f.failures[name]; len(errs) > 0 {
		f.failures[name] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeFlows) ActivateFlow(_ context.Context, name string, version *int) (salesforce.ActivationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.versions[name] = version
	if err := f.popFailure(name); err != nil {
		return salesforce.ActivationResult{}, err
	}
	latest, ok := f.latest[name]
	if !ok {
		return salesforce.ActivationResult{}, fmt.Errorf("%w: '%s'", salesforce.ErrFlowNotFound, name)
	}
	target := latest
	if version != nil {
		target = *version
	}
	prev := f.active[name]
	if prev == target {
		return salesforce.ActivationResult{
			Message:         fmt.Sprintf("Flow '%s' is already active (version %d)", name, prev),
			Unchanged:       true,
			PreviousVersion: prev,
			NewVersion:      prev,
		}, nil
	}
	f.active[name] = target
	return salesforce.ActivationResult{
		Message:         fmt.Sprintf("Flow '%s' activated successfully (version %d)", name, target),
		PreviousVersion: prev,
		NewVersion:      target,
	}, nil
}

func (f *fakeFlows) DeactivateFlow(_ context.Context, name string) (salesforce.ActivationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.popFailure(name); err != nil {
		return salesforce.ActivationResult{}, err
	}
	if _, ok := f.latest[name]; !ok {
		return salesforce.ActivationResult{}, fmt.Errorf("%w: '%s'", salesforce.ErrFlowNotFound, name)
	}
	prev := f.active[name]
	if prev == 0 {
		return salesforce.ActivationResult{Message: fmt.Sprintf("Flow '%s' is already inactive", name), Unchanged: true}, nil
	}
	f.active[name] = 0
	return salesforce.ActivationResult{
		Message:         fmt.Sprintf("Flow '%s' deactivated successfully", name),
		PreviousVersion: prev,
	}, nil
}

func (f *fakeFlows) GetFlowStatus(_ context.Context, name string) (salesforce.FlowStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.popFailure(name); err != nil {
		return salesforce.FlowStatus{}, err
	}
	latest, ok := f.latest[name]
	if !ok {
		return salesforce.FlowStatus{}, fmt.Errorf("%w: '%s'", salesforce.ErrFlowNotFound, name)
	}
	active := f.active[name]
	return salesforce.FlowStatus{
		Name:            name,
		IsActive:        active > 0,
		ActiveVersion:   active,
		LatestVersion:   latest,
		HasNewerVersion: latest > active,
	}, nil
}

func (f *fakeFlows) ValidateFlowsExist(_ context.Context, names []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]bool, len(names))
	for _, n := range names {
		_, out[n] = f.latest[n]
	}
	return out, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func newEngine(t *testing.T, flows engine.FlowService, opts ...engine.Option) *engine.Engine {
	t.Helper()
	cfg := batch.Config{
		MaxConcurrent:  2,
		RateLimitDelay: 10 * time.Millisecond,
		Timeout:        5 * time.Second,
		Retry: batch.RetryPolicy{
			MaxRetries:         2,
			BaseDelay:          10 * time.Millisecond,
			MaxDelay:           100 * time.Millisecond,
			ExponentialBackoff: true,
		},
	}
	p, err := batch.NewProcessor(cfg, batch.WithSleeper(noSleep), batch.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return engine.New(flows, p, opts...)
}

func byID(results []batch.Outcome) map[string]batch.Outcome {
	out := make(map[string]batch.Outcome, len(results))
	for _, r := range results {
		out[r.ID] = r
	}
	return out
}

func TestActivateFlows(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 2)
	flows.add("Flow_B", 3, 3)
	e := newEngine(t, flows)

	result := e.ActivateFlows(context.Background(), []string{"Flow_A", "Flow_B", "Missing"}, nil, nil)

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 2, result.Summary.Successful)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 1, result.Summary.Skipped)

	outcomes := byID(result.Results)
	assert.Equal(t, engine.ActivationPayload{PreviousVersion: 0, NewVersion: 2}, outcomes["Flow_A"].Payload)
	assert.Equal(t, "Flow 'Flow_A' activated successfully (version 2)", outcomes["Flow_A"].Message)
	assert.Equal(t, batch.NoOpAlreadyActive, outcomes["Flow_B"].NoOp)
	assert.False(t, outcomes["Missing"].Success)
	assert.Contains(t, outcomes["Missing"].Error, "flow not found")
	assert.Equal(t, 1, flows.calls["Missing"], "not-found is final and never retried")
}

func TestActivateFlows_RetriesTransientErrors(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 1)
	flows.failures["Flow_A"] = []error{errors.New("UNABLE_TO_LOCK_ROW: record locked")}
	e := newEngine(t, flows)

	result := e.ActivateFlows(context.Background(), []string{"Flow_A"}, nil, nil)

	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, 2, flows.calls["Flow_A"])
}

func TestActivateFlows_RestrictionIsFinal(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Account_trg_Update", 0, 1)
	flows.failures["Account_trg_Update"] = []error{
		&salesforce.RestrictionError{Flow: "Account_trg_Update", Err: errors.New("UNKNOWN_EXCEPTION")},
	}
	e := newEngine(t, flows)

	result := e.ActivateFlows(context.Background(), []string{"Account_trg_Update"}, nil, nil)

	require.Len(t, result.Results, 1)
	out := result.Results[0]
	assert.False(t, out.Success)
	assert.Equal(t, salesforce.RestrictionCode, out.Error)
	assert.Contains(t, out.Message, "cannot be activated via API")
	assert.Equal(t, 1, flows.calls["Account_trg_Update"])
}

func TestActivateFlows_GlobalVersion(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 5)
	e := newEngine(t, flows)

	v := 3
	result := e.ActivateFlows(context.Background(), []string{"Flow_A"}, &v, nil)

	require.True(t, result.Results[0].Success)
	assert.Equal(t, &v, flows.versions["Flow_A"])
	assert.Equal(t, 3, flows.active["Flow_A"])
}

func TestActivateFlowsWithVersions(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 5)
	flows.add("Flow_B", 0, 5)
	e := newEngine(t, flows)

	own := 2
	global := 4
	specs := []flowfile.FlowSpec{{Name: "Flow_A", Version: &own}, {Name: "Flow_B"}}
	result := e.ActivateFlowsWithVersions(context.Background(), specs, &global, nil)

	assert.Equal(t, 2, result.Summary.Successful)
	assert.Equal(t, 2, flows.active["Flow_A"])
	assert.Equal(t, 4, flows.active["Flow_B"])

	result = e.ActivateFlowsWithVersions(context.Background(), []flowfile.FlowSpec{{Name: "Flow_B"}}, nil, nil)
	assert.Equal(t, 1, result.Summary.Successful)
	assert.Nil(t, flows.versions["Flow_B"])
	assert.Equal(t, 5, flows.active["Flow_B"])
}

func TestDeactivateFlows(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 2, 2)
	flows.add("Flow_B", 0, 1)
	e := newEngine(t, flows)

	result := e.DeactivateFlows(context.Background(), []string{"Flow_A", "Flow_B"}, nil)

	outcomes := byID(result.Results)
	assert.Equal(t, engine.DeactivationPayload{PreviousVersion: 2}, outcomes["Flow_A"].Payload)
	assert.Equal(t, batch.NoOpAlreadyInactive, outcomes["Flow_B"].NoOp)
	assert.Equal(t, "Flow 'Flow_B' is already inactive", outcomes["Flow_B"].Message)
	assert.Equal(t, 0, flows.active["Flow_A"])
}

func TestGetFlowStatuses(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 1, 2)
	e := newEngine(t, flows)

	result := e.GetFlowStatuses(context.Background(), []string{"Flow_A"}, nil)

	require.Len(t, result.Results, 1)
	payload, ok := result.Results[0].Payload.(engine.StatusPayload)
	require.True(t, ok)
	assert.True(t, payload.IsActive)
	assert.True(t, payload.HasNewerVersion)
}

func TestRunOperation(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 1)
	e := newEngine(t, flows)
	ctx := context.Background()

	for _, op := range []engine.Operation{engine.OperationActivate, engine.OperationStatus, engine.OperationDeactivate} {
		result, err := e.RunOperation(ctx, op, []string{"Flow_A"}, nil)
		require.NoError(t, err, op)
		assert.Equal(t, 1, result.Summary.Successful, op)
	}

	_, err := e.RunOperation(ctx, engine.Operation("delete"), []string{"Flow_A"}, nil)
	require.ErrorIs(t, err, engine.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), `"delete"`)
}

func TestValidateFlowsExist(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 1)
	flows.add("Flow_C", 0, 1)
	e := newEngine(t, flows)

	v, err := e.ValidateFlowsExist(context.Background(), []string{"Flow_C", "Flow_B", "Flow_A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Flow_C", "Flow_A"}, v.Existing)
	assert.Equal(t, []string{"Flow_B"}, v.NonExistent)
	assert.Len(t, v.Results, 3)
}

func TestEngine_ProgressAndMetrics(t *testing.T) {
	flows := newFakeFlows()
	flows.add("Flow_A", 0, 1)
	flows.add("Flow_B", 1, 1)
	recorder := metrics.NewRecorder()
	e := newEngine(t, flows, engine.WithRecorder(recorder), engine.WithClock(func() time.Time { return time.Unix(100, 0) }))

	var events []batch.Progress
	sink := batch.ProgressFunc(func(p batch.Progress) { events = append(events, p) })

	e.ActivateFlows(context.Background(), []string{"Flow_A", "Flow_B", "Missing"}, nil, sink)

	require.Len(t, events, 3)
	assert.Equal(t, 3, events[2].Processed)
	assert.Equal(t, "activate", events[0].Label)

	families, err := recorder.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "sf_flow_items_processed_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					values[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{
		metrics.OutcomeSuccess: 1,
		metrics.OutcomeSkipped: 1,
		metrics.OutcomeFailed:  1,
	}, values)
	assert.Same(t, recorder, e.Recorder())
}
