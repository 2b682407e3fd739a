package observability

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// SetupTracing initializes OpenTelemetry tracing with stdout exporter (for demo; replace with OTLP in prod)
func SetupTracing(serviceName string) func() {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatalf("failed to initialize stdouttrace exporter: %v", err)
	}
	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return func() { _ = provider.Shutdown(context.Background()) }
}

// SetupMeterProvider initializes the Prometheus metrics exporter
func SetupMeterProvider() *metric.MeterProvider {
	exp, err := otelprom.New()
	if err != nil {
		log.Fatalf("failed to initialize prometheus exporter: %v", err)
	}
	return metric.NewMeterProvider(metric.WithReader(exp))
}

// ChatMetrics counts routing and transport outcomes for the chat core.
type ChatMetrics struct {
	MessagesRouted    prometheus.Counter
	RoutingRejected   prometheus.Counter
	DeliveryFailures  prometheus.Counter
	DeliveredMessages prometheus.Counter
	ActiveSessions    prometheus.Gauge
}

// NewChatMetrics registers the chat metrics on the default registry.
func NewChatMetrics() *ChatMetrics {
	return &ChatMetrics{
		MessagesRouted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_routed_total",
			Help: "Messages accepted and appended to a conversation log",
		}),
		RoutingRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_rejected_total",
			Help: "Messages rejected during validation or key resolution",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_delivery_failures_total",
			Help: "Best-effort deliveries that failed at the transport layer",
		}),
		DeliveredMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_delivered_total",
			Help: "Messages pushed to live sessions",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Currently connected WebSocket sessions",
		}),
	}
}
