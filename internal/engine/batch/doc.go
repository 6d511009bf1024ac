// Package batch drives a list of identifiers through a caller-supplied operation
// in fixed-size concurrent groups.
//
// Each item runs under a per-attempt timeout and is retried according to a
// RetryPolicy when the failure is transient. Key features:
//   - Bounded concurrency: at most Config.MaxConcurrent operations are in flight,
//     and a group must fully settle before the next one starts
//   - Retry classification by message token, HTTP status code and transport error code
//   - Exponential or constant backoff with additive jitter, clamped to a maximum
//   - A pause of Config.RateLimitDelay between groups
//   - One Progress event per settled identifier, delivered to an optional ProgressSink
//
// Individual failures never abort a run. They are captured as failed Outcomes and
// counted in the Summary, so callers decide how a non-zero failure count is surfaced.
package batch
