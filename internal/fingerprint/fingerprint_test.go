package fingerprint

import "testing"

func TestComputeGroupsSameFramesSameType(t *testing.T) {
	frames := []Frame{{Function: "f", Module: "m", InApp: true}}

	r1 := Compute("E", "boom", frames)
	r2 := Compute("E", "different message", frames)

	if r1.FingerprintHash != r2.FingerprintHash {
		t.Fatalf("expected same fingerprint, got %s vs %s", r1.FingerprintHash, r2.FingerprintHash)
	}
}

func TestComputeDiffersOnFrames(t *testing.T) {
	a := Compute("E", "boom", []Frame{{Function: "f", Module: "m", InApp: true}})
	b := Compute("E", "boom", []Frame{{Function: "g", Module: "m", InApp: true}})

	if a.FingerprintHash == b.FingerprintHash {
		t.Fatal("expected different fingerprints for different frames")
	}
}

func TestFilterInAppFallsBackToFullList(t *testing.T) {
	frames := []Frame{
		{Function: "libc_call", Module: "libc", InApp: false},
	}
	r := Compute("E", "msg", frames)
	if r.FingerprintHash == "" {
		t.Fatal("expected non-empty fingerprint even with no in_app frames")
	}
}

func TestNormalizeFrameFallsBackToFilenameBasename(t *testing.T) {
	frames := []Frame{{Filename: "/src/app/main.go", InApp: true}}
	r := Compute("", "", frames)
	if r.FingerprintHash == "" {
		t.Fatal("expected non-empty fingerprint")
	}
}

func TestTitleTruncatesAt200(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	r := Compute("E", string(long), nil)
	if len(r.Title) > 200 {
		t.Fatalf("title too long: %d", len(r.Title))
	}
}

func TestTitleUsesFirstLineOnly(t *testing.T) {
	r := Compute("E", "first\nsecond\nthird", nil)
	if r.Title != "E: first" {
		t.Fatalf("expected %q, got %q", "E: first", r.Title)
	}
}

func TestComputeDeterministicForIdenticalInput(t *testing.T) {
	f1 := []Frame{{Function: "a", InApp: true}, {Function: "b", InApp: true}}
	f2 := []Frame{{Function: "a", InApp: true}, {Function: "b", InApp: true}}

	r1 := Compute("E", "m", f1)
	r2 := Compute("E", "m", f2)
	if r1.FingerprintHash != r2.FingerprintHash {
		t.Fatal("expected deterministic fingerprint for identical input")
	}
}
