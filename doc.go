/*
Package actionbridge lets an AI agent drive a simulated surgical procedure by
issuing structured action requests, while the bridge keeps the agent inside the
procedure.

The bridge speaks the Neuro SDK game protocol to the agent. Every request is
checked twice before it reaches the host: its parameters must match the
action's schema, and the action must be enabled in the current step of the
procedure. Only then is the capability adapter called, and the agent receives
exactly one result for the request.

# Concept

A procedure is a small state machine: steps enable actions, and transitions
move the session to another step when an action succeeds (or fails, if the
procedure says so). The actions the agent may call are re-advertised after
every transition, so it only ever sees what is valid right now.

The host that performs the actions sits behind ports.CapabilityAdapter. The
sim package provides a simulated host, and the process package runs external
commands.

# Usage

	def, err := file.ReadProcedure("examples/ventriculostomy.yaml")
	if err != nil {
		log.Fatal(err)
	}

	bridge, err := actionbridge.New(def, sim.New(),
		actionbridge.WithLogger(logger),
		actionbridge.WithJournal(memory.NewJournal()),
	)
	if err != nil {
		log.Fatal(err)
	}

	// Dial the agent and serve sessions until ctx is done.
	client := websocket.NewClient("ws://localhost:8000")
	if err := bridge.Connect(ctx, client); err != nil {
		log.Fatal(err)
	}

Sessions may also be driven without a transport through Bridge.NewCore, which
is how the MCP adapter exposes the procedure as tools.
*/
package actionbridge
