/*
Package domain contains the core models of the Action Bridge.

It defines the entities shared by every other package: the declarative action
catalog, procedure definitions, the live session state, requests and results,
the error taxonomy and the lifecycle hooks. The package is kept free of I/O and
persistence concerns.

# Key Entities

  - ActionSpec: a named, schema-described operation the agent may request.
  - Procedure: the ordered and branching Steps deciding which actions are legal when.
  - SessionState: the mutable snapshot of one agent session (step, context, sequence).
  - ActionRequest / ActionResult: one agent request and its single correlated answer.
  - ActionOutcome: what a capability adapter reports back from the host.
*/
package domain
