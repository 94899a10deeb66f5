package mintgarden

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// arc2DappNamePattern is the dApp name shape required by the ARC-2 note
// convention.
var arc2DappNamePattern = regexp.MustCompile(
	`^[a-zA-Z0-9][a-zA-Z0-9_/@.-]{4,31}$`,
)

// NoteType tags the ARC-2 note attached to each transaction this package
// builds, so the transactions can be classified when scanning the ledger
// out-of-band.
type NoteType string

const (
	// NoteCustodialFunding marks the initial funding payment of a new
	// custodial account.
	NoteCustodialFunding NoteType = "cifp"

	// NoteCustodialNonParticipation marks the staking opt-out of a new
	// custodial account.
	NoteCustodialNonParticipation NoteType = "cinp"

	// NoteAssetCreate marks an NFT edition creation.
	NoteAssetCreate NoteType = "nftc"
)

// noteData is the JSON payload of an ARC-2 note.
type noteData struct {
	Type          NoteType `json:"t"`
	Edition       uint64   `json:"e,omitempty"`
	TotalEditions uint64   `json:"n,omitempty"`
	Standards     []string `json:"s,omitempty"`
}

// encodeNote renders an ARC-2 compliant, JSON-encoded transaction note:
// "<dappName>:j<payload>".
func encodeNote(dappName string, data noteData) ([]byte, error) {
	if !arc2DappNamePattern.MatchString(dappName) {
		return nil, fmt.Errorf("invalid dapp name: %v", dappName)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("unable to encode note: %w", err)
	}

	return []byte(fmt.Sprintf("%s:j%s", dappName, payload)), nil
}
