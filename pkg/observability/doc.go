/*
Package observability turns bridge lifecycle hooks into Prometheus metrics
and structured log lines.

Both are plain domain.LifecycleHooks values and can be combined with
domain.LifecycleHooks.Merge before they are handed to the executor.
*/
package observability
