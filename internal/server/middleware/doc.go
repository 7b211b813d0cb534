// Package middleware provides the gin middleware of the edge server.
//
// Failures are never written by the middleware that detects them. Guards
// and handlers record the error with c.Error and abort; ErrorHandler, which
// sits first in the chain, resolves the last recorded error through the
// classifier chain and writes the single error response. The rate limiter
// is the exception: its 429 body has its own fixed shape.
package middleware
