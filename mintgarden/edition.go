// Package mintgarden assembles, groups and signs the atomic transaction
// groups the marketplace needs: the funding pair that seeds a new custodial
// account, the batched asset-creation group that mints a run of NFT
// editions, and the clawback triplet that moves an edition into a buyer's
// custodial account. Grouping is mandatory rather than an optimization: the
// ledger treats a group as one economic unit, so a clawback can never
// execute without the recipient having been funded and opted in within the
// same atomic step.
package mintgarden

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// metadataHashSize is the required size in bytes of an edition's
	// decoded content hash.
	metadataHashSize = 32
)

var (
	// ErrInvalidMetadataHash is returned when an edition's content hash
	// is not valid hex of the expected length.
	ErrInvalidMetadataHash = errors.New("invalid edition metadata hash")

	// ErrNoEditions is returned when a mint group is requested without
	// any editions.
	ErrNoEditions = errors.New("no editions provided")

	// ErrTooManyEditions is returned when a mint batch exceeds the
	// ledger's maximum atomic group size. Callers must chunk larger
	// runs.
	ErrTooManyEditions = fmt.Errorf("cannot mint more than %d editions "+
		"at once", MaxGroupSize)
)

// EditionSpec describes a single NFT edition to mint. The fields follow the
// ARC-3 single-unit convention: one indivisible unit per asset, with the
// content URL and hash committed in the asset parameters.
type EditionSpec struct {
	// Code is the short unique code of the template this edition belongs
	// to. It becomes the asset's unit name.
	Code string

	// Edition is this edition's ordinal within the run, starting at 1.
	Edition uint64

	// TotalEditions is the size of the run.
	TotalEditions uint64

	// URL points at the edition's content. The builder appends the
	// ARC-3 fragment marker.
	URL string

	// MetadataHash is the hex-encoded 32-byte hash committing to the
	// edition content.
	MetadataHash string
}

// AssetName returns the ledger asset name for the edition, e.g.
// "PUCK0001 2/10".
func (e *EditionSpec) AssetName() string {
	return fmt.Sprintf("%s %d/%d", e.Code, e.Edition, e.TotalEditions)
}

// Validate checks the edition is mintable.
func (e *EditionSpec) Validate() error {
	if e.Code == "" {
		return fmt.Errorf("edition has no template code")
	}
	if e.URL == "" {
		return fmt.Errorf("edition %v has no content URL",
			e.AssetName())
	}
	if e.TotalEditions == 0 || e.Edition == 0 ||
		e.Edition > e.TotalEditions {

		return fmt.Errorf("edition %d/%d out of range", e.Edition,
			e.TotalEditions)
	}

	_, err := e.decodeMetadataHash()

	return err
}

// decodeMetadataHash decodes the hex content hash, enforcing the expected
// length.
func (e *EditionSpec) decodeMetadataHash() ([]byte, error) {
	hash, err := hex.DecodeString(e.MetadataHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataHash, err)
	}
	if len(hash) != metadataHashSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrInvalidMetadataHash, len(hash), metadataHashSize)
	}

	return hash, nil
}
