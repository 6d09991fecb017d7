/*
Package observability provides lifecycle hooks for monitoring the stageflow engine.

Metrics turns engine events into Prometheus counters and histograms, and
LogHooks writes an audit trail of transitions through slog. Both return
domain.LifecycleHooks, so they compose with Merge.
*/
package observability
