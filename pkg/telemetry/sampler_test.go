package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
)

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name       string
		sampler    string
		samplerArg string
	}{
		{"unset_defaults_to_full_sampling", "", ""},
		{"always_on", "always_on", ""},
		{"always_off", "always_off", ""},
		{"traceidratio", "traceidratio", "0.5"},
		{"parentbased_always_on", "parentbased_always_on", ""},
		{"parentbased_always_off", "parentbased_always_off", ""},
		{"parentbased_traceidratio", "parentbased_traceidratio", "0.1"},
		{"unrecognized_falls_back", "xray", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sampler trace.Sampler = createSampler(&Config{
				Sampler:    tt.sampler,
				SamplerArg: tt.samplerArg,
			})
			if sampler == nil {
				t.Error("Expected a non-nil sampler")
			}
		})
	}
}

func TestSamplingRatio(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"empty", "", 1.0},
		{"half", "0.5", 0.5},
		{"zero", "0", 0},
		{"one", "1", 1.0},
		{"tiny", "0.001", 0.001},
		{"unparseable", "lots", 1.0},
		{"negative_clamps_low", "-0.5", 0},
		{"oversized_clamps_high", "1.5", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := samplingRatio(tt.input); got != tt.expected {
				t.Errorf("samplingRatio(%q) = %f, want %f", tt.input, got, tt.expected)
			}
		})
	}
}
