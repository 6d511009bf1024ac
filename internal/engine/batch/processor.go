package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Default batch processing configuration.
const (
	// DefaultMaxConcurrent is the default number of identifiers per group.
	DefaultMaxConcurrent = 3

	// DefaultRateLimitDelay is the default pause between groups.
	DefaultRateLimitDelay = time.Second

	// DefaultTimeout is the default deadline for a single attempt.
	DefaultTimeout = 300 * time.Second
)

// Config is the immutable configuration of a Processor.
type Config struct {
	// MaxConcurrent is the group size and therefore the concurrency bound.
	MaxConcurrent int

	// RateLimitDelay is the pause between two consecutive groups.
	RateLimitDelay time.Duration

	// Timeout bounds every individual attempt.
	Timeout time.Duration

	// Retry is shared read-only by all items of all runs.
	Retry RetryPolicy
}

// DefaultConfig returns the default processor configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  DefaultMaxConcurrent,
		RateLimitDelay: DefaultRateLimitDelay,
		Timeout:        DefaultTimeout,
		Retry:          DefaultRetryPolicy(),
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max concurrent must be >= 1, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if c.RateLimitDelay < 0 {
		return fmt.Errorf("%w: rate limit delay must be >= 0, got %s", ErrInvalidConfig, c.RateLimitDelay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be > 0, got %s", ErrInvalidConfig, c.Timeout)
	}
	return c.Retry.Validate()
}

// Operation performs the remote work for one identifier. A returned error is
// subject to retry classification; an Outcome with Success=false is final.
// Implementations should honour ctx, which is cancelled when the attempt times out.
type Operation func(ctx context.Context, id string) (Outcome, error)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for batch, group and retry events.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithSleeper replaces the sleeper used for backoff and rate-limit pauses.
func WithSleeper(s Sleeper) Option {
	return func(p *Processor) { p.sleep = s }
}

// WithJitterSource replaces the random source used for backoff jitter.
// The function must return values in [0, 1).
func WithJitterSource(f func() float64) Option {
	return func(p *Processor) { p.jitter = f }
}

// WithClock replaces the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor drives identifiers through an Operation in fixed-size concurrent groups.
// It holds no per-run state and is safe for concurrent use.
type Processor struct {
	cfg     Config
	retrier *Retrier
	logger  zerolog.Logger
	sleep   Sleeper
	jitter  func() float64
	now     func() time.Time
}

// NewProcessor creates a Processor. It fails if cfg violates its invariants.
func NewProcessor(cfg Config, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		cfg:    cfg,
		logger: zerolog.Nop(),
		sleep:  SleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retrier = NewRetrier(cfg.Retry, p.logger, p.sleep, p.jitter)

	return p, nil
}

// NewProcessorWithDefaults creates a processor with DefaultConfig.
func NewProcessorWithDefaults(opts ...Option) *Processor {
	p, err := NewProcessor(DefaultConfig(), opts...)
	if err != nil {
		panic(err) // DefaultConfig is always valid
	}
	return p
}

// Config returns the processor configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// Retrier returns the retrier shared by all items.
func (p *Processor) Retrier() *Retrier {
	return p.retrier
}

// Run processes ids with op and returns one Outcome per identifier.
//
// ids are split into groups of MaxConcurrent. All members of a group run
// concurrently and the whole group settles before the next one starts. After
// each group except the last, Run pauses for RateLimitDelay. sink, if not nil,
// receives one event per identifier. Individual failures never abort the run.
// If ctx is cancelled, identifiers not yet started are marked failed.
func (p *Processor) Run(ctx context.Context, ids []string, op Operation, label string, sink ProgressSink) Result {
	stats := Stats{Total: len(ids), StartTime: p.now()}
	results := make([]Outcome, 0, len(ids))

	if len(ids) == 0 {
		stats.EndTime = p.now()
		return newResult(results, stats)
	}

	if op == nil {
		op = func(context.Context, string) (Outcome, error) { return Outcome{}, ErrNilOperation }
	}

	groups := Partition(ids, p.cfg.MaxConcurrent)
	p.logger.Info().
		Str("operation", label).
		Int("total", len(ids)).
		Int("groups", len(groups)).
		Msgf("Starting batch %s for %d items", label, len(ids))

	record := func(out Outcome) {
		stats.record(out)
		results = append(results, out)
		p.emit(sink, Progress{
			Total:      stats.Total,
			Processed:  stats.Processed(),
			Successful: stats.Successful,
			Failed:     stats.Failed,
			Skipped:    stats.Skipped,
			ID:         out.ID,
			Label:      label,
			Outcome:    out,
			StartTime:  stats.StartTime,
		})
	}

	for groupIndex, group := range groups {
		if err := ctx.Err(); err != nil {
			p.logger.Warn().Str("operation", label).Err(err).Msg("batch cancelled, marking remaining items failed")
			for _, rest := range groups[groupIndex:] {
				for _, id := range rest {
					record(Failed(id, label, err))
				}
			}
			break
		}

		p.logger.Info().
			Str("operation", label).
			Int("group", groupIndex+1).
			Int("groups", len(groups)).
			Int("size", len(group)).
			Msgf("Processing chunk %d/%d (%d items)", groupIndex+1, len(groups), len(group))

		outcomes, err := p.runGroup(ctx, groupIndex, group, op, label)
		if err != nil {
			p.logger.Error().
				Str("operation", label).
				Int("group", groupIndex+1).
				Err(err).
				Msgf("Batch processing error in chunk %d", groupIndex+1)
			outcomes = make([]Outcome, len(group))
			for i, id := range group {
				outcomes[i] = Failed(id, label, err)
			}
		}

		for _, out := range outcomes {
			record(out)
		}

		p.logger.Debug().
			Str("operation", label).
			Int("group", groupIndex+1).
			Int("processed", stats.Processed()).
			Msg("chunk settled")

		if groupIndex < len(groups)-1 && p.cfg.RateLimitDelay > 0 {
			p.logger.Debug().
				Str("operation", label).
				Dur("delay", p.cfg.RateLimitDelay).
				Msgf("Waiting %s before next chunk...", p.cfg.RateLimitDelay)
			// A cancelled sleep is handled at the top of the next iteration.
			_ = p.sleep(ctx, p.cfg.RateLimitDelay)
		}
	}

	stats.EndTime = p.now()
	result := newResult(results, stats)

	p.logger.Info().
		Str("operation", label).
		Int("successful", stats.Successful).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Dur("duration", result.Summary.Duration).
		Msgf("Batch %s completed in %s", label, result.Summary.Duration)

	return result
}

// runGroup launches every member of group and waits for all of them to settle.
// Outcomes are returned in group order. Item errors, panics included, fail only
// their own identifier. A non-nil error means the group as a whole faulted and
// no outcome is usable.
func (p *Processor) runGroup(ctx context.Context, groupIndex int, group []string, op Operation, label string) (outcomes []Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcomes, err = nil, &GroupFaultError{Group: groupIndex + 1, Cause: r}
		}
	}()

	outcomes = make([]Outcome, len(group))

	var g errgroup.Group
	for i, id := range group {
		g.Go(func() (goErr error) {
			defer func() {
				if r := recover(); r != nil {
					goErr = &GroupFaultError{Group: groupIndex + 1, Cause: r}
				}
			}()
			out, itemErr := p.runItem(ctx, id, op, label)
			if itemErr != nil {
				out = Failed(id, label, itemErr)
			}
			outcomes[i] = out
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runItem executes one identifier under the retry policy, each attempt bounded by the timeout.
func (p *Processor) runItem(ctx context.Context, id string, op Operation, label string) (Outcome, error) {
	var out Outcome
	retryLabel := fmt.Sprintf("%s '%s'", label, id)

	err := p.retrier.Do(ctx, retryLabel, func(ctx context.Context) error {
		res, attemptErr := p.attempt(ctx, id, op, label)
		if attemptErr != nil {
			return attemptErr
		}
		out = res.normalize(id)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

type attemptResult struct {
	out Outcome
	err error
}

// attempt runs op once. The operation's context is cancelled when the timeout
// fires; if the operation ignores it, its eventual result is discarded.
func (p *Processor) attempt(ctx context.Context, id string, op Operation, label string) (Outcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: &PanicError{ID: id, Cause: r}}
			}
		}()
		out, err := op(attemptCtx, id)
		done <- attemptResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, &TimeoutError{Label: label, ID: id, Timeout: p.cfg.Timeout}
	}
}

// emit delivers p to sink. A panicking sink is logged and otherwise ignored.
func (p *Processor) emit(sink ProgressSink, pr Progress) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn().
				Str("operation", pr.Label).
				Str("id", pr.ID).
				Interface("panic", r).
				Msg("progress sink panicked")
		}
	}()
	sink.OnProgress(pr)
}

// Partition splits ids into consecutive groups of at most size elements.
// The returned groups share the backing array of ids.
func Partition(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	groups := make([][]string, 0, CalculateGroups(len(ids), size))
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		groups = append(groups, ids[start:end:end])
	}
	return groups
}

// CalculateGroups returns the number of groups needed for total items.
func CalculateGroups(total, size int) int {
	if size < 1 || total <= 0 {
		return 0
	}
	groups := total / size
	if total%size > 0 {
		groups++
	}
	return groups
}
