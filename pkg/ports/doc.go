/*
Package ports defines the driven ports (interfaces) of the Action Bridge.

These interfaces decouple the core from external implementations, allowing the
bridge to work with various hosts, storage backends and definition sources.

# Key Interfaces

  - CapabilityAdapter: performs an action against the host application or device.
  - StateStore: persists and loads SessionState snapshots.
  - DistributedLocker: distributed locking for sessions and exclusive capabilities.
  - Journal: append-only audit trail of action results.
  - ProcedureLoader: retrieves procedure definitions by id.
*/
package ports
