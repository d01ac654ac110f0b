package project

import "testing"

func TestGenerateKeyIsUniqueAndHex(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct keys")
	}
	if len(a) != 40 {
		t.Fatalf("expected 40 hex chars (20 bytes), got %d", len(a))
	}
}
