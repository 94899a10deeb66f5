// Package ledger isolates all network I/O against the remote ledger node
// behind the Bridge interface, and implements the bounded confirmation
// poller that callers use to await a submitted transaction.
package ledger

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// ConfirmationResult is the outcome of a pending transaction lookup.
// Exactly one of ConfirmedRound > 0 or a non-empty PoolError signals a
// terminal state; both zero means the transaction is still pending.
type ConfirmationResult struct {
	// ConfirmedRound is the round the transaction was confirmed in, or
	// zero if it hasn't been.
	ConfirmedRound uint64

	// PoolError is set when the node explicitly rejected the transaction
	// from its pool. This is a definite, non-retryable failure.
	PoolError string

	// AssetIndex is the ledger id of the asset created by the
	// transaction, for confirmed asset-creation transactions.
	AssetIndex uint64
}

// Terminal reports whether the result represents a final outcome.
func (c ConfirmationResult) Terminal() bool {
	return c.ConfirmedRound > 0 || c.PoolError != ""
}

// AssetRecord is a read-only projection of a minted asset, fetched on
// demand from the ledger. This layer never caches it; ownership bookkeeping
// lives with the surrounding services.
type AssetRecord struct {
	// AssetID is the ledger-assigned asset index.
	AssetID uint64

	// Creator is the address that issued the asset-creation transaction.
	Creator string

	// UnitName is the short edition code of the asset.
	UnitName string

	// Name is the full asset name.
	Name string

	// URL points at the asset content.
	URL string

	// MetadataHash commits to the asset content.
	MetadataHash []byte

	// Clawback is the address authorized to force-transfer units of the
	// asset.
	Clawback string

	// DefaultFrozen is true if holdings of the asset start out frozen.
	DefaultFrozen bool
}

// AssetHolding describes one asset position of an account.
type AssetHolding struct {
	AssetID uint64
	Amount  uint64
	Frozen  bool
}

// AccountInfo is the subset of the node's account state this layer needs:
// the spendable balance plus the counters that drive the minimum balance
// requirement.
type AccountInfo struct {
	// Address is the account's ledger address.
	Address string

	// Balance is the account balance in the ledger's base unit.
	Balance uint64

	// Assets is the set of assets the account has opted into.
	Assets []AssetHolding

	// CreatedAssets is the number of assets created by this account.
	CreatedAssets uint64

	// OptedInApps and CreatedApps count application state held by the
	// account.
	OptedInApps uint64
	CreatedApps uint64

	// AppByteSlices and AppUints are the account's total application
	// schema allocation.
	AppByteSlices uint64
	AppUints      uint64

	// Status is the participation status reported by the node.
	Status string
}

// Holds reports whether the account has opted into the given asset with at
// least one unit.
func (a *AccountInfo) Holds(assetID uint64) bool {
	for _, holding := range a.Assets {
		if holding.AssetID == assetID && holding.Amount > 0 {
			return true
		}
	}

	return false
}

// OptedIn reports whether the account has opted into the given asset at
// all, regardless of balance.
func (a *AccountInfo) OptedIn(assetID uint64) bool {
	for _, holding := range a.Assets {
		if holding.AssetID == assetID {
			return true
		}
	}

	return false
}

// Bridge is our bridge to the ledger node. All methods are blocking network
// calls with no internal retries: retry and backoff policy belongs to
// callers, with the confirmation Poller implementing the single bounded
// retry loop this layer needs.
type Bridge interface {
	// SuggestedParams fetches the current fee and validity window
	// snapshot used to build transactions. Every member of an atomic
	// group must be built against a single snapshot.
	SuggestedParams(ctx context.Context) (types.SuggestedParams, error)

	// SubmitRawGroup submits one or more signed transactions as a single
	// atomic unit. The node accepts or rejects the whole group.
	SubmitRawGroup(ctx context.Context, signedTxns ...[]byte) error

	// PendingTransaction looks up the confirmation state of a submitted
	// transaction id.
	PendingTransaction(ctx context.Context,
		txID string) (ConfirmationResult, error)

	// AccountInfo fetches the current state of an account.
	AccountInfo(ctx context.Context, address string) (AccountInfo, error)

	// AssetInfo fetches the parameters of a minted asset. It returns
	// (nil, nil) when the asset does not exist, distinguishing not-found
	// from transport failure.
	AssetInfo(ctx context.Context, assetIndex uint64) (*AssetRecord, error)

	// CurrentRound returns the last round the node has sealed.
	CurrentRound(ctx context.Context) (uint64, error)

	// WaitForRoundAfter blocks until a round later than the passed one
	// has been sealed, and returns the new last round.
	WaitForRoundAfter(ctx context.Context, round uint64) (uint64, error)
}
