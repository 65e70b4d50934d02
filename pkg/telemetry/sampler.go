package telemetry

import (
	"strconv"

	"go.opentelemetry.io/otel/sdk/trace"
)

// createSampler maps the OTEL_TRACES_SAMPLER naming scheme onto SDK
// samplers. Export runs are few and long, so the unset default is full
// sampling rather than a ratio.
func createSampler(cfg *Config) trace.Sampler {
	switch cfg.Sampler {
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(samplingRatio(cfg.SamplerArg))
	case "parentbased_always_on":
		return trace.ParentBased(trace.AlwaysSample())
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(samplingRatio(cfg.SamplerArg)))
	default:
		// "always_on", unset, and anything unrecognized.
		return trace.AlwaysSample()
	}
}

// samplingRatio parses a ratio argument, clamping to [0, 1]. Unparseable
// values mean full sampling, never silence.
func samplingRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(s, 64)
	if s == "" || err != nil {
		return 1.0
	}
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1.0
	}
	return ratio
}
