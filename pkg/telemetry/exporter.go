package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc/credentials/insecure"
)

// createExporter creates the OTLP span exporter. gRPC is the default
// transport; http and http/protobuf select the HTTP one.
func createExporter(ctx context.Context, cfg *Config) (*otlptrace.Exporter, error) {
	switch strings.ToLower(cfg.Protocol) {
	case "http/protobuf", "http":
		return httpExporter(ctx, cfg)
	default:
		return grpcExporter(ctx, cfg)
	}
}

// grpcExporter builds the gRPC transport. The endpoint is host:port; any
// URL scheme the operator pasted in is stripped, with http:// implying
// plaintext credentials.
func grpcExporter(ctx context.Context, cfg *Config) (*otlptrace.Exporter, error) {
	var opts []otlptracegrpc.Option

	plaintext := cfg.Insecure
	if endpoint := cfg.Endpoint; endpoint != "" {
		if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
			endpoint = rest
			plaintext = true
		} else if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
			endpoint = rest
		}
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	if plaintext {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	return otlptracegrpc.New(ctx, opts...)
}

// httpExporter builds the HTTP transport with the same endpoint and
// plaintext handling as the gRPC one.
func httpExporter(ctx context.Context, cfg *Config) (*otlptrace.Exporter, error) {
	var opts []otlptracehttp.Option

	plaintext := cfg.Insecure
	if endpoint := cfg.Endpoint; endpoint != "" {
		if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
			endpoint = rest
			plaintext = true
		} else if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
			endpoint = rest
		}
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if plaintext {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(ctx, opts...)
}
