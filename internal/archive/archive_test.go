package archive

import "testing"

func TestResultOutcomeZeroValueIsInserted(t *testing.T) {
	var r Result
	if r.Outcome != 0 {
		t.Fatalf("expected zero value InsertResult to be Inserted (0), got %v", r.Outcome)
	}
}
