package tasks

import "context"

// RunnerInterface defines the single pass over the configured feeds.
// Used by the main application once per invocation.
// Feeds are processed one at a time; the seen cache is saved after each.
// Example usage:
//
//	runner := NewRunner(configCache, cache, messages, interrupter, opts)
//	if err := runner.Run(ctx, feedNames); err != nil { ... }
type RunnerInterface interface {
	Run(ctx context.Context, feedNames []string) error
}
