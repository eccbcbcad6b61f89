// Package neuro implements the wire format of the Neuro SDK game API.
//
// Every frame is a JSON text message of the form
//
//	{"command": "...", "game": "...", "data": {...}}
//
// The bridge sends startup, context, action/result, actions/register,
// actions/unregister and actions/force; the agent sends action, whose
// parameters arrive as a JSON-encoded string in data.data, and may ask for
// every action again with actions/reregister_all.
package neuro
