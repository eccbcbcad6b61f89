/*
Package session runs agent sessions against a loaded procedure.

A Core owns one SessionState and the set of actions the agent has been told
about. A Session binds a Core to a Neuro SDK connection and processes one
frame at a time on a single goroutine, so a second request is never read
before the first result is sent. The Manager persists snapshots under
per-session locks and tracks live sessions for the operator API.
*/
package session
