package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// AlgodConfig holds the connection settings for a remote algod node.
type AlgodConfig struct {
	// URL is the base URL of the node, without the port.
	URL string

	// Port is the node's REST port. Zero means the port is part of URL.
	Port uint16

	// Token is the static API token sent with every request.
	Token string
}

// AlgodBridge is an implementation of the Bridge interface backed by the
// REST API of a remote algod node.
type AlgodBridge struct {
	client *algod.Client
}

// NewAlgodBridge creates a new ledger bridge from the passed node settings.
func NewAlgodBridge(cfg *AlgodConfig) (*AlgodBridge, error) {
	address := cfg.URL
	if cfg.Port != 0 {
		address = fmt.Sprintf("%s:%d", cfg.URL, cfg.Port)
	}

	client, err := algod.MakeClient(address, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("unable to create node client: %w", err)
	}

	return &AlgodBridge{
		client: client,
	}, nil
}

// SuggestedParams fetches the current fee and validity window snapshot.
func (a *AlgodBridge) SuggestedParams(
	ctx context.Context) (types.SuggestedParams, error) {

	params, err := a.client.SuggestedParams().Do(ctx)
	if err != nil {
		return types.SuggestedParams{}, fmt.Errorf("unable to fetch "+
			"suggested params: %w", err)
	}

	return params, nil
}

// SubmitRawGroup submits a set of signed transactions as one atomic unit.
// The raw bytes are concatenated in submission order, which is how the node
// expects a transaction group on the wire.
func (a *AlgodBridge) SubmitRawGroup(ctx context.Context,
	signedTxns ...[]byte) error {

	raw := bytes.Join(signedTxns, nil)
	txID, err := a.client.SendRawTransaction(raw).Do(ctx)
	if err != nil {
		// The node's response names the offending transaction and
		// reason, so we log it in full before handing the error back
		// unchanged. Remediation is the caller's job.
		log.Errorf("Node rejected transaction group of %d txn(s): %v",
			len(signedTxns), err)

		return fmt.Errorf("unable to submit transaction group: %w",
			err)
	}

	log.Debugf("Submitted transaction group of %d txn(s), first txid=%v",
		len(signedTxns), txID)

	return nil
}

// PendingTransaction looks up the confirmation state of a transaction id.
func (a *AlgodBridge) PendingTransaction(ctx context.Context,
	txID string) (ConfirmationResult, error) {

	info, _, err := a.client.PendingTransactionInformation(txID).Do(ctx)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("unable to fetch "+
			"pending txn %v: %w", txID, err)
	}

	return ConfirmationResult{
		ConfirmedRound: info.ConfirmedRound,
		PoolError:      info.PoolError,
		AssetIndex:     info.AssetIndex,
	}, nil
}

// AccountInfo fetches the current state of an account.
func (a *AlgodBridge) AccountInfo(ctx context.Context,
	address string) (AccountInfo, error) {

	info, err := a.client.AccountInformation(address).Do(ctx)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("unable to fetch account "+
			"%v: %w", address, err)
	}

	return AccountInfo{
		Address:       info.Address,
		Balance:       info.Amount,
		Assets:        marshalHoldings(info.Assets),
		CreatedAssets: info.TotalCreatedAssets,
		OptedInApps:   info.TotalAppsOptedIn,
		CreatedApps:   info.TotalCreatedApps,
		AppByteSlices: info.AppsTotalSchema.NumByteSlice,
		AppUints:      info.AppsTotalSchema.NumUint,
		Status:        info.Status,
	}, nil
}

// AssetInfo fetches the parameters of a minted asset, returning (nil, nil)
// when the asset does not exist on the ledger.
func (a *AlgodBridge) AssetInfo(ctx context.Context,
	assetIndex uint64) (*AssetRecord, error) {

	info, err := a.client.GetAssetByID(assetIndex).Do(ctx)
	if err != nil {
		var notFound common.NotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("unable to fetch asset %d: %w",
			assetIndex, err)
	}

	return &AssetRecord{
		AssetID:       info.Index,
		Creator:       info.Params.Creator,
		UnitName:      info.Params.UnitName,
		Name:          info.Params.Name,
		URL:           info.Params.Url,
		MetadataHash:  info.Params.MetadataHash,
		Clawback:      info.Params.Clawback,
		DefaultFrozen: info.Params.DefaultFrozen,
	}, nil
}

// CurrentRound returns the last round the node has sealed.
func (a *AlgodBridge) CurrentRound(ctx context.Context) (uint64, error) {
	status, err := a.client.Status().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to fetch node status: %w", err)
	}

	return status.LastRound, nil
}

// WaitForRoundAfter blocks until a round later than the passed one has been
// sealed.
func (a *AlgodBridge) WaitForRoundAfter(ctx context.Context,
	round uint64) (uint64, error) {

	status, err := a.client.StatusAfterBlock(round).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to await round after %d: %w",
			round, err)
	}

	return status.LastRound, nil
}

// marshalHoldings maps the node's asset holding records into our slimmer
// representation.
func marshalHoldings(holdings []models.AssetHolding) []AssetHolding {
	if len(holdings) == 0 {
		return nil
	}

	assets := make([]AssetHolding, len(holdings))
	for i, holding := range holdings {
		assets[i] = AssetHolding{
			AssetID: holding.AssetId,
			Amount:  holding.Amount,
			Frozen:  holding.IsFrozen,
		}
	}

	return assets
}

// A compile time assertion to ensure AlgodBridge meets the Bridge
// interface.
var _ Bridge = (*AlgodBridge)(nil)
