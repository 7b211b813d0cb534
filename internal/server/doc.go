// Package server assembles the edge HTTP server: the gin engine with its
// middleware pipeline, the built-in endpoints, the rate-limit store and
// limiters, the token verifier and issuer, and the WebSocket manager.
//
// The middleware order is fixed:
//
//	Logging → Tracing → Metrics → ErrorHandler → Recovery →
//	SecurityHeaders → CORS → Compression → BodyLimit →
//	RequireContentType → Sanitize
//
// Routes under API() additionally pass the global limiter; routes under
// Protected() also require a bearer token and pass the per-identity
// limiter.
package server
