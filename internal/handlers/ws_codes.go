package handlers

// Custom WebSocket close codes used by the room handler. These provide more
// specific reasons for closure than standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidMessageError = 3001 // Client sent a message the server could not decode repeatedly.
)
