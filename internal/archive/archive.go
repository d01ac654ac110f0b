// Package archive provides content-addressed storage for raw ingest
// payloads. The "hash, then conditionally store" shape is adapted from
// the teacher's blob.Store.Upload (internal/blob/blob.go), which
// computed a CID before writing; crashkeep hashes with SHA-256 instead
// of a multihash/CID and writes through database.Store rather than
// directly against a pool.
package archive

import (
	"context"
	"fmt"

	"github.com/primal-host/crashkeep/internal/codec"
	"github.com/primal-host/crashkeep/internal/database"
)

// Result reports whether Ingest's archive was new.
type Result struct {
	Hash    string
	Outcome database.InsertResult
}

// Ingest hashes the compressed payload and writes it through
// insert_archive_if_absent, enqueueing it only when it is new. This is
// the C6 ingest handler's steps 7–9 in one call. isEnvelope records
// which endpoint accepted the payload so the digest worker knows which
// wire parser to apply without re-sniffing the bytes.
func Ingest(ctx context.Context, store *database.Store, projectID int64, compressedPayload []byte, originalSize *int64, isEnvelope bool) (*Result, error) {
	hash := codec.Hash(compressedPayload)

	outcome, err := store.InsertArchiveIfAbsent(ctx, hash, projectID, compressedPayload, originalSize, isEnvelope)
	if err != nil {
		return nil, fmt.Errorf("archive: insert %s: %w", hash, err)
	}

	if outcome == database.Inserted {
		if err := store.Enqueue(ctx, hash); err != nil {
			return nil, fmt.Errorf("archive: enqueue %s: %w", hash, err)
		}
	}

	return &Result{Hash: hash, Outcome: outcome}, nil
}
