// Package gateway multiplexes many MCP client sessions over one HTTP
// surface.  Each connecting client gets its own conversation (an MCP
// server instance) bound to a server-sent-event stream; follow-up
// messages are posted separately and correlated to the stream by an
// opaque session identifier.
//
// Lifecycle: a GET on the event endpoint provisions a session in the
// Registry, delivers its identifier to the client before any
// application message, and holds the connection open.  POSTed messages
// are dispatched to the identified conversation in arrival order, with
// replies emitted on that session's event stream.  A DELETE, a peer
// disconnect or a write failure closes the transport, which releases
// the registry record exactly once.  Sessions are independent: closing
// one never affects delivery on another.
package gateway
