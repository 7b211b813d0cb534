// Package health provides the health endpoints of the edge server.
//
// A Handler reports the service version and environment together with
// the result of every registered Check. Checks run concurrently under a
// shared timeout; any failure turns the response into a 503.
//
//	h := health.NewHandler(version, env, health.WithLogger(logger))
//	h.AddCheck(health.NewPingCheck("ratelimit_store", store))
//	h.RegisterRoutes(engine)
package health
