package mintgarden

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/davecgh/go-spew/spew"

	"github.com/mintvaultlabs/mintvault/ledger"
)

const (
	// MinAccountBalance is the ledger's minimum balance for a live
	// account, in the base unit (0.1 of the native currency). It's also
	// the minimum balance increase incurred by each asset opt-in and
	// each created asset.
	MinAccountBalance = 100_000

	// FlatTxnFee is the fixed per-transaction fee surcharge added to
	// funding payments so the funded account can pay for its own opt-in
	// or opt-out transaction. The surcharge is a fixed constant on
	// purpose: the funded amount must not drift with the node's
	// suggested fee.
	FlatTxnFee = 1_000

	// MaxGroupSize is the ledger's maximum atomic transaction group
	// size.
	MaxGroupSize = 16

	// DefaultDappName is the ARC-2 dApp name attached to transaction
	// notes when the caller doesn't configure one.
	DefaultDappName = "MintVault"

	// arc3URLSuffix marks an asset URL as pointing at ARC-3 metadata.
	arc3URLSuffix = "#arc3"

	// arc2Standard and arc3Standard name the conventions recorded in
	// transaction notes.
	arc2Standard = "arc2"
	arc3Standard = "arc3"
)

// SignedGroup is a fully signed atomic transaction group, ready for
// submission. Both slices are in submission order.
type SignedGroup struct {
	// TxIDs are the transaction ids of the group members.
	TxIDs []string

	// SignedTxns are the signed raw bytes of the group members.
	SignedTxns [][]byte
}

// UnsignedGroup is an assembled atomic transaction group whose members still
// need signatures. Each member records its designated signer address; members
// owned by an external wallet are signed out-of-band before the group can be
// submitted. All slices are in submission order.
type UnsignedGroup struct {
	// Txns are the group members, already carrying the shared group id.
	Txns []types.Transaction

	// TxIDs are the transaction ids of the group members.
	TxIDs []string

	// Signers holds, per member, the address expected to sign it.
	Signers []string
}

// GroupBuilderConfig houses the dependencies of a GroupBuilder.
type GroupBuilderConfig struct {
	// Bridge is used to fetch the suggested-params snapshot each group
	// is built against.
	Bridge ledger.Bridge

	// DappName is the ARC-2 dApp name used in transaction notes.
	DappName string
}

// GroupBuilder constructs the canonical transaction group shapes of the
// marketplace. Every group is built against a single suggested-params
// snapshot fetched immediately before assembly, so all members share one
// validity window and fee basis.
type GroupBuilder struct {
	cfg GroupBuilderConfig
}

// NewGroupBuilder creates a group builder from the passed config.
func NewGroupBuilder(cfg *GroupBuilderConfig) *GroupBuilder {
	builder := &GroupBuilder{
		cfg: *cfg,
	}
	if builder.cfg.DappName == "" {
		builder.cfg.DappName = DefaultDappName
	}

	return builder
}

// FundingGroup builds the two-transaction group that makes a freshly
// generated custodial account usable: a payment from the funding account
// covering the initial balance plus one flat fee, followed by the new
// account opting out of staking participation. Member order is fixed
// (funding, then opt-out) since the group id hashes the ordered list.
func (b *GroupBuilder) FundingGroup(ctx context.Context, funding,
	custodial crypto.Account, initialBalance uint64) (*SignedGroup, error) {

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	fundingNote, err := encodeNote(b.cfg.DappName, noteData{
		Type:      NoteCustodialFunding,
		Standards: []string{arc2Standard},
	})
	if err != nil {
		return nil, err
	}

	// The surcharge lets the new account pay for the opt-out that
	// follows.
	payTxn, err := transaction.MakePaymentTxn(
		funding.Address.String(), custodial.Address.String(),
		initialBalance+FlatTxnFee, fundingNote, "", params,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build funding payment: %w",
			err)
	}

	optOutNote, err := encodeNote(b.cfg.DappName, noteData{
		Type:      NoteCustodialNonParticipation,
		Standards: []string{arc2Standard},
	})
	if err != nil {
		return nil, err
	}

	// Custodial accounts never participate in consensus, so they opt
	// out of staking rewards right away.
	optOutTxn, err := transaction.MakeKeyRegTxnWithStateProofKey(
		custodial.Address.String(), optOutNote, params, "", "", "",
		0, 0, 0, true,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build opt-out txn: %w", err)
	}

	return assignAndSign(
		[]types.Transaction{payTxn, optOutTxn},
		[]crypto.Account{funding, custodial},
	)
}

// MintGroup builds the batched asset-creation group for a run of NFT
// editions, one single-unit ARC-3 asset per edition, all signed by the
// creator. The authority address becomes manager, reserve, freeze and
// clawback of every created asset so the marketplace keeps custody-level
// control regardless of which account minted.
func (b *GroupBuilder) MintGroup(ctx context.Context, creator crypto.Account,
	authority string, editions []*EditionSpec) (*SignedGroup, error) {

	if len(editions) == 0 {
		return nil, ErrNoEditions
	}
	if len(editions) > MaxGroupSize {
		return nil, ErrTooManyEditions
	}

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	txns := make([]types.Transaction, len(editions))
	signers := make([]crypto.Account, len(editions))
	for i, edition := range editions {
		if err := edition.Validate(); err != nil {
			return nil, err
		}

		hash, err := edition.decodeMetadataHash()
		if err != nil {
			return nil, err
		}

		note, err := encodeNote(b.cfg.DappName, noteData{
			Type:          NoteAssetCreate,
			Edition:       edition.Edition,
			TotalEditions: edition.TotalEditions,
			Standards:     []string{arc2Standard, arc3Standard},
		})
		if err != nil {
			return nil, err
		}

		txn, err := transaction.MakeAssetCreateTxn(
			creator.Address.String(), note, params, 1, 0, false,
			authority, authority, authority, authority,
			edition.Code, edition.AssetName(),
			edition.URL+arc3URLSuffix, string(hash),
		)
		if err != nil {
			return nil, fmt.Errorf("unable to build create txn "+
				"for %v: %w", edition.AssetName(), err)
		}

		txns[i] = txn
		signers[i] = creator
	}

	log.Debugf("Built mint batch of %d edition(s) for creator %v",
		len(editions), creator.Address)
	log.Tracef("Mint batch editions: %v", spew.Sdump(editions))

	return assignAndSign(txns, signers)
}

// ClawbackGroup builds the three-transaction group that moves one unit of
// an asset into a recipient's custodial account: a payment covering the
// recipient's opt-in fee and minimum balance increase, the recipient's
// zero-amount opt-in, and the clawback that revokes the unit from the
// current holder. All three stand or fall together, so the recipient can
// never end up billed but not opted in, or opted in but empty handed.
func (b *GroupBuilder) ClawbackGroup(ctx context.Context, authority,
	recipient crypto.Account, assetIndex uint64,
	holder string) (*SignedGroup, error) {

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	fundsTxn, err := transaction.MakePaymentTxn(
		authority.Address.String(), recipient.Address.String(),
		MinAccountBalance+FlatTxnFee, nil, "", params,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build opt-in funding: %w",
			err)
	}

	optInTxn, err := transaction.MakeAssetAcceptanceTxn(
		recipient.Address.String(), nil, params, assetIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build opt-in txn: %w", err)
	}

	clawTxn, err := transaction.MakeAssetRevocationTxn(
		authority.Address.String(), holder, 1,
		recipient.Address.String(), nil, params, assetIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build clawback txn: %w",
			err)
	}

	return assignAndSign(
		[]types.Transaction{fundsTxn, optInTxn, clawTxn},
		[]crypto.Account{authority, recipient, authority},
	)
}

// HolderTransferGroup builds the single-transaction group that claws one
// unit of an asset from one holder straight to another already opted-in
// address, used for marketplace trades between custodial accounts.
func (b *GroupBuilder) HolderTransferGroup(ctx context.Context,
	authority crypto.Account, assetIndex uint64, from,
	to string) (*SignedGroup, error) {

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	clawTxn, err := transaction.MakeAssetRevocationTxn(
		authority.Address.String(), from, 1, to, nil, params,
		assetIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build clawback txn: %w",
			err)
	}

	return assignAndSign(
		[]types.Transaction{clawTxn},
		[]crypto.Account{authority},
	)
}

// CloseOutGroup builds the zero-amount payment that closes an account out
// to the given address, reclaiming its remaining balance. Used to
// decommission ephemeral creator accounts.
func (b *GroupBuilder) CloseOutGroup(ctx context.Context,
	account crypto.Account, closeTo string) (*SignedGroup, error) {

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	closeTxn, err := transaction.MakePaymentTxn(
		account.Address.String(), closeTo, 0, nil, closeTo, params,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build close-out txn: %w",
			err)
	}

	return assignAndSign(
		[]types.Transaction{closeTxn},
		[]crypto.Account{account},
	)
}

// ImportGroup builds the three-transaction group that brings an asset held
// by an external wallet into a recipient's custodial account: a payment
// covering the recipient's opt-in cost (plus its base minimum balance when
// the account hasn't been seeded yet), the recipient's zero-amount opt-in,
// and the holder's transfer closing its asset position out to the recipient.
//
// The holder's key never passes through this system, so the group is
// returned unsigned with the designated signer recorded per member; the
// external wallet countersigns its transfer out-of-band.
func (b *GroupBuilder) ImportGroup(ctx context.Context, funding,
	recipient string, assetIndex uint64, externalHolder string,
	newAccount bool) (*UnsignedGroup, error) {

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	amount := uint64(MinAccountBalance + FlatTxnFee)
	if newAccount {
		amount += MinAccountBalance
	}

	fundsTxn, err := transaction.MakePaymentTxn(
		funding, recipient, amount, nil, "", params,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build opt-in funding: %w",
			err)
	}

	optInTxn, err := transaction.MakeAssetAcceptanceTxn(
		recipient, nil, params, assetIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build opt-in txn: %w", err)
	}

	transferTxn, err := transaction.MakeAssetTransferTxn(
		externalHolder, recipient, 1, nil, params, recipient,
		assetIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build transfer txn: %w",
			err)
	}

	grouped, err := transaction.AssignGroupID(
		[]types.Transaction{fundsTxn, optInTxn, transferTxn}, "",
	)
	if err != nil {
		return nil, fmt.Errorf("unable to assign group id: %w", err)
	}

	txIDs := make([]string, len(grouped))
	for i, txn := range grouped {
		txIDs[i] = crypto.GetTxID(txn)
	}

	return &UnsignedGroup{
		Txns:    grouped,
		TxIDs:   txIDs,
		Signers: []string{funding, recipient, externalHolder},
	}, nil
}

// ExportGroup builds the four-transaction group that releases an asset to
// a non-custodial wallet: fee funding for the owner, an asset config
// clearing the freeze and reserve authorities, the transfer itself with an
// opt-out close to the destination, and the refund of the owner's freed
// minimum balance back to the funding account.
func (b *GroupBuilder) ExportGroup(ctx context.Context, funding,
	owner crypto.Account, assetIndex uint64,
	recipient string) (*SignedGroup, error) {

	params, err := b.cfg.Bridge.SuggestedParams(ctx)
	if err != nil {
		return nil, err
	}

	// Cover the owner's transfer and refund fees.
	fundsTxn, err := transaction.MakePaymentTxn(
		funding.Address.String(), owner.Address.String(),
		2*FlatTxnFee, nil, "", params,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build export funding: %w",
			err)
	}

	// Once the asset leaves custody we give up the freeze and reserve
	// roles, keeping only manager and clawback cleared of the sale.
	configTxn, err := transaction.MakeAssetConfigTxn(
		funding.Address.String(), nil, params, assetIndex,
		funding.Address.String(), "", "", funding.Address.String(),
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build config txn: %w", err)
	}

	transferTxn, err := transaction.MakeAssetTransferTxn(
		owner.Address.String(), recipient, 1, nil, params, recipient,
		assetIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build transfer txn: %w",
			err)
	}

	refundTxn, err := transaction.MakePaymentTxn(
		owner.Address.String(), funding.Address.String(),
		MinAccountBalance, nil, "", params,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to build refund txn: %w", err)
	}

	return assignAndSign(
		[]types.Transaction{fundsTxn, configTxn, transferTxn, refundTxn},
		[]crypto.Account{funding, funding, owner, owner},
	)
}

// assignAndSign computes the shared group id over the ordered member list
// and signs each member with its designated signer, returning ids and raw
// bytes in submission order.
func assignAndSign(txns []types.Transaction,
	signers []crypto.Account) (*SignedGroup, error) {

	grouped, err := transaction.AssignGroupID(txns, "")
	if err != nil {
		return nil, fmt.Errorf("unable to assign group id: %w", err)
	}

	group := &SignedGroup{
		TxIDs:      make([]string, len(grouped)),
		SignedTxns: make([][]byte, len(grouped)),
	}
	for i, txn := range grouped {
		txID, signed, err := crypto.SignTransaction(
			signers[i].PrivateKey, txn,
		)
		if err != nil {
			return nil, fmt.Errorf("unable to sign group member "+
				"%d: %w", i, err)
		}

		group.TxIDs[i] = txID
		group.SignedTxns[i] = signed
	}

	return group, nil
}
