// Package instrumentation provides OpenTelemetry instrumentation for the
// authorization server core: counters and histograms for grant, token,
// client, and storage operations, plus tracer access for request flows.
//
// Instrumentation is no-op unless enabled, so library users pay nothing
// when observability is not wired:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-oauth-service",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		MeterProvider:  sdkProvider, // e.g. an SDK provider with a Prometheus exporter
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
package instrumentation
