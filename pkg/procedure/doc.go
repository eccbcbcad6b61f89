// Package procedure implements the Procedure State Machine.
//
// A Machine is compiled once from a validated domain.Procedure and is then
// shared read-only by every session running that procedure. Per-session data
// lives in domain.SessionState, which the Machine inspects and advances but
// never owns.
package procedure
