// Package realtime manages WebSocket sessions: admission against a
// connection ceiling, in-band authentication, heartbeats and teardown.
//
// Frames are JSON objects of the form {"event": "...", "data": {...}}.
// A Manager is an http.Handler; each accepted request runs its session on
// the serving goroutine until either side disconnects.
package realtime
