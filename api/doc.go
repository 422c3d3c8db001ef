// Package api defines the HTTP-facing types of the streambridge gateway.
//
// The gateway renders a remote stream as a chunked HTTP response:
//
//	GET  /v1/streams?url=text:hello&on_demand=true
//	POST /v1/streams   {"url": "text:hello", "on_demand": true}
//
// The response carries the stream's correlation ID in X-Stream-ID, the
// host's head as Content-Type, every body chunk flushed as it arrives, and
// the terminal status code in the X-Stream-Status trailer.
//
// Handlers live in api/handlers.
package api
