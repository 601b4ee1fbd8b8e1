// Package server provides the HTTP API of the gateway.
//
// The server is a thin layer over the session supervisor, the request
// router and the event bus. It validates requests, resolves the sender and
// translates outcomes to the response envelope clients already expect.
//
// # API Endpoints
//
//   - POST /login: issue a bearer token for a configured user
//   - POST /send-message, /send-media, /send-group-message, /clear-message:
//     outbound operations performed by the session named in "sender"
//   - GET, POST /sessions and DELETE /sessions/{id}: session management
//   - GET /event: lifecycle events as Server-Sent Events
//   - GET /ws: lifecycle events over a websocket, which also accepts
//     create-session frames
//   - GET /config: the loaded configuration without user names
//   - GET /health: uptime, session counts and process usage
//
// # Responses
//
// Send endpoints answer with {"status": bool, "response"|"message": ...}.
// Missing fields yield 422 with a field to message map, an unknown sender
// or group yields 422 with a message, and a failure reported by the
// messaging client yields 500 with the cause in "response". Session
// management endpoints use the structured ErrorResponse instead.
//
// # Authentication
//
// When users are configured every endpoint except /login and /health
// requires a token, passed as "Authorization: Bearer <token>" or, for
// browsers opening /event or /ws, as the "token" query parameter.
//
// # Observers
//
// Both observer transports subscribe to the event bus, so every client
// first receives an init frame with the registry snapshot and then every
// event in publication order. Pairing codes are additionally rendered as a
// PNG data URL in the "src" field of qr frames.
package server
