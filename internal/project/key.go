// Package project generates DSN public keys for new projects. Project
// persistence itself lives in database.Store — the teacher's account
// package drew a Store boundary per-domain, but crashkeep has no
// analogous per-project bounded context to split out, so only the
// key-generation half of the teacher's account.go/did.go pair survives
// here, adapted from GenerateDID's random-token shape.
package project

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateKey creates a new DSN public key: 20 random bytes encoded as
// lowercase hex, the same width as the teacher's DID token but without
// the did:plc: namespace, since crashkeep projects are not AT Protocol
// identities.
func GenerateKey() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("project: generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
