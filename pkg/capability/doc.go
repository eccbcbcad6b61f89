// Package capability isolates the bridge from the host's capability surface.
//
// Guard wraps any ports.CapabilityAdapter so that host panics and overruns
// come back as failed outcomes, exclusive capabilities are serialized through
// a Permit, and in-flight calls are never abandoned midway. HostLoop hands
// calls over to a single designated goroutine for hosts that may only be
// driven from their own thread. Mux routes action names to typed handlers.
package capability
