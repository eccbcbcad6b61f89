// Package executor implements the Action Executor: the single entry point
// through which agent requests reach the host.
package executor
