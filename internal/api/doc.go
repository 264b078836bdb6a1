// Package api implements the local HTTP control API and WebSocket relay for
// pubsubd.
//
// This package provides:
//   - REST endpoints to connect, disconnect, subscribe and unsubscribe
//   - A status endpoint reporting connection state and every tracked topic
//   - Read access to the lifecycle event journal
//   - A WebSocket hub relaying lifecycle events and inbound messages
//   - Optional HS256 bearer-token auth with single-use WebSocket tickets
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/status
//	POST   /api/v1/connect
//	POST   /api/v1/disconnect
//	GET    /api/v1/subscriptions
//	POST   /api/v1/subscriptions         {"topics": ["a/b", "c/#"]}
//	DELETE /api/v1/subscriptions/{topic} (wildcards escaped, "#" as %23)
//	GET    /api/v1/events?kind=&topic=&limit=&offset=
//	POST   /api/v1/auth/ws-ticket
//	GET    /api/v1/ws?ticket=
//
// Session commands return 202 Accepted: their outcome arrives later as an
// event on the "lifecycle" relay channel.
//
// # Security
//
// The server binds to 127.0.0.1 by default. With api.auth.enabled every route
// except health and the relay upgrade requires "Authorization: Bearer <jwt>",
// signed HS256 with api.auth.jwt_secret (mint one with "pubsubd token").
// Browsers cannot set headers on a WebSocket upgrade, so they first POST to
// /auth/ws-ticket and connect with ?ticket=; a ticket is valid once, for a
// minute. With auth disabled the API must not be exposed beyond the host.
package api
