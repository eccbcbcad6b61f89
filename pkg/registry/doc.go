// Package registry implements the Action Schema Registry: the catalog of
// declared actions, their compiled parameter schemas and the change events
// sessions use to keep the agent's action list in sync.
package registry
