// Package mcp implements the provider protocol used between the chat
// orchestrator and external tool-provider processes. It contains the JSON-RPC
// 2.0 wire schema, the Transport abstraction, the client-side Session that
// performs the initialization handshake and correlates requests with
// responses, and a small Server loop for writing providers in Go.
//
// A Session owns exactly one Transport. All writes to a transport are
// serialized because a provider's wire session is not assumed reentrant;
// responses are matched to requests by message ID. Death of the underlying
// process or channel marks the session Dead and fails every pending call with
// ErrSessionLost without affecting any other session.
package mcp
