package worker

import (
	"testing"

	"github.com/primal-host/crashkeep/internal/sentry"
)

func TestToFingerprintFramesPreservesOrderAndFields(t *testing.T) {
	frames := []sentry.Frame{
		{Function: "main", Module: "app", InApp: true},
		{Function: "panic", Package: "runtime", InApp: false},
	}

	out := toFingerprintFrames(frames)
	if len(out) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(out))
	}
	if out[0].Function != "main" || out[0].Module != "app" || !out[0].InApp {
		t.Fatalf("unexpected first frame: %+v", out[0])
	}
	if out[1].Function != "panic" || out[1].Package != "runtime" || out[1].InApp {
		t.Fatalf("unexpected second frame: %+v", out[1])
	}
}
