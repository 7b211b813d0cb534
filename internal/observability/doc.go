// Package observability provides logging, metrics, and tracing
// functionality for the edge server.
//
// # Logging
//
// The Logger interface wraps zap with a small structured API:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// A single Prometheus registry is shared by every subsystem. Subsystems
// register their own collectors through the Registerer:
//
//	metrics := observability.NewMetrics("vibemuse")
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
//
// # Tracing
//
// OpenTelemetry tracing with an optional OTLP gRPC exporter:
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "vibemuse-edge",
//	    OTLPEndpoint: "localhost:4317",
//	    SamplingRate: 1.0,
//	    Enabled:      true,
//	})
//	defer tracer.Shutdown(ctx)
package observability
