// Package telemetry provides observability instrumentation for Forgeplane.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics, and an async event publisher into a
// single Telemetry aggregate that is created at startup and threaded through
// the provisioning workflow via context.
//
// Initialize at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "forgeplane"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// Components retrieve the logger with telemetry.FromContext(ctx); workflow
// spans and metrics are recorded through the Tracer and Metrics fields.
// Tokens and other secrets must never be logged; callers log key names only.
package telemetry
