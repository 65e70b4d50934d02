package utils

import (
	"strings"
	"testing"
	"time"
)

func TestTimer_BasicPhases(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	timer := NewTimer("export", WithClock(clock))

	pt := timer.Start("build_index")
	clock.Advance(200 * time.Millisecond)
	d := pt.Stop()

	if d != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", d)
	}
	if timer.GetDuration("build_index") != 200*time.Millisecond {
		t.Errorf("GetDuration mismatch: %v", timer.GetDuration("build_index"))
	}
}

func TestTimer_StopIdempotent(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	timer := NewTimer("export", WithClock(clock))

	pt := timer.Start("scan")
	clock.Advance(50 * time.Millisecond)
	first := pt.Stop()

	clock.Advance(100 * time.Millisecond)
	second := pt.Stop()

	if first != second {
		t.Errorf("Second Stop changed duration: %v vs %v", first, second)
	}
}

func TestTimer_UnknownPhase(t *testing.T) {
	timer := NewTimer("export")
	if d := timer.StopPhase("missing"); d != 0 {
		t.Errorf("Expected 0 for unknown phase, got %v", d)
	}
	if d := timer.GetDuration("missing"); d != 0 {
		t.Errorf("Expected 0 for unknown phase, got %v", d)
	}
}

func TestTimer_Disabled(t *testing.T) {
	timer := NewTimer("export", WithEnabled(false))
	pt := timer.Start("noop")
	if d := pt.Stop(); d != 0 {
		t.Errorf("Disabled timer should report 0, got %v", d)
	}
	if s := timer.Summary(); s != "" {
		t.Errorf("Disabled timer should produce empty summary, got %q", s)
	}
}

func TestTimer_PhaseOrder(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	timer := NewTimer("export", WithClock(clock))

	timer.Start("read_header").Stop()
	timer.Start("scan_records").Stop()
	timer.Start("write_json").Stop()

	phases := timer.GetPhases()
	if len(phases) != 3 {
		t.Fatalf("Expected 3 phases, got %d", len(phases))
	}
	want := []string{"read_header", "scan_records", "write_json"}
	for i, name := range want {
		if phases[i].Name != name {
			t.Errorf("Phase %d: expected %s, got %s", i, name, phases[i].Name)
		}
	}
}

func TestTimer_Summary(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	timer := NewTimer("export", WithClock(clock))

	pt := timer.Start("scan")
	clock.Advance(time.Second)
	pt.Stop()

	summary := timer.Summary()
	if !strings.Contains(summary, "export Timing Summary") {
		t.Errorf("Summary missing header: %q", summary)
	}
	if !strings.Contains(summary, "scan") {
		t.Errorf("Summary missing phase name: %q", summary)
	}
	if !strings.Contains(summary, "Total:") {
		t.Errorf("Summary missing total: %q", summary)
	}
}
