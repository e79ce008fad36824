package ir

// Version constants for the wire protocol and server.
const (
	// ProtocolVersion is the wire protocol version.
	ProtocolVersion = "1"

	// ServerVersion is the bindery server version.
	ServerVersion = "0.1.0"
)
