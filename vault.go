// Package mintvault implements the custodial transaction orchestration layer
// of an NFT marketplace on an Algorand-style ledger. It generates and seals
// custodial accounts, assembles and signs the marketplace's atomic
// transaction groups, submits them and awaits confirmation within a bounded
// round budget.
package mintvault

import (
	"context"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"golang.org/x/sync/errgroup"

	"github.com/mintvaultlabs/mintvault/custody"
	"github.com/mintvaultlabs/mintvault/ledger"
	"github.com/mintvaultlabs/mintvault/mintgarden"
)

var (
	// ErrInsufficientFunds is returned when the funding account's balance
	// cannot cover an operation without dipping below its own minimum
	// balance.
	ErrInsufficientFunds = errors.New("funding account has insufficient " +
		"funds")

	// ErrAssetNotFound is returned when an operation references an asset
	// index the ledger doesn't know.
	ErrAssetNotFound = errors.New("asset not found")
)

// Config houses the dependencies and settings of a Vault.
type Config struct {
	// Bridge is the ledger node connection used for all network I/O.
	Bridge ledger.Bridge

	// FundingPhrase is the recovery phrase of the marketplace's funding
	// account. The funding account pays for custodial account seeding and
	// acts as the clawback authority of every minted asset.
	FundingPhrase string

	// DappName is the ARC-2 dApp name attached to transaction notes.
	// Empty selects the package default.
	DappName string

	// MaxWaitRounds caps how many rounds a confirmation wait observes
	// before giving up. Zero selects the ledger package default.
	MaxWaitRounds uint64
}

// Vault is the marketplace's custodial transaction orchestrator. It holds the
// decoded funding account for the lifetime of the process; all other signing
// keys are recovered transiently per operation and wiped afterwards.
type Vault struct {
	cfg Config

	funding crypto.Account
	builder *mintgarden.GroupBuilder
	poller  *ledger.Poller
}

// NewVault decodes the funding account and assembles the orchestrator. No
// network calls are made; use CheckConnection to probe the node.
func NewVault(cfg *Config) (*Vault, error) {
	fundingKey, err := mnemonic.ToPrivateKey(cfg.FundingPhrase)
	if err != nil {
		return nil, fmt.Errorf("invalid funding phrase: %w", err)
	}
	funding, err := crypto.AccountFromPrivateKey(fundingKey)
	if err != nil {
		return nil, fmt.Errorf("invalid funding phrase: %w", err)
	}

	log.Infof("Vault funding account: %v", funding.Address)

	return &Vault{
		cfg:     *cfg,
		funding: funding,
		builder: mintgarden.NewGroupBuilder(&mintgarden.GroupBuilderConfig{
			Bridge:   cfg.Bridge,
			DappName: cfg.DappName,
		}),
		poller: ledger.NewPoller(&ledger.PollerConfig{
			Bridge:        cfg.Bridge,
			MaxWaitRounds: cfg.MaxWaitRounds,
		}),
	}, nil
}

// FundingAddress returns the public address of the funding account.
func (v *Vault) FundingAddress() string {
	return v.funding.Address.String()
}

// CheckConnection probes the ledger node.
func (v *Vault) CheckConnection(ctx context.Context) error {
	round, err := v.cfg.Bridge.CurrentRound(ctx)
	if err != nil {
		return fmt.Errorf("unable to reach ledger node: %w", err)
	}

	log.Debugf("Ledger node reachable, last round %d", round)

	return nil
}

// ProvisionAccount generates a fresh custodial account and seals its recovery
// phrase with the owner's passphrase. The account exists only locally until
// FundAccount is called; no network calls are made here.
func (v *Vault) ProvisionAccount(passphrase string) (*custody.Account, error) {
	account, err := custody.GenerateAccount(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unable to provision account: %w", err)
	}

	log.Infof("Provisioned custodial account %v", account.Address)

	return account, nil
}

// FundAccount seeds a provisioned custodial account with its initial balance
// and opts it out of staking participation, atomically, then waits for the
// funding payment to confirm. The owner's passphrase is needed because the
// account itself signs the opt-out.
func (v *Vault) FundAccount(ctx context.Context, account *custody.Account,
	passphrase string, initialBalance uint64) (ledger.ConfirmationResult,
	error) {

	signer, err := custody.RecoverSigner(account.EncryptedPhrase, passphrase)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	defer custody.ZeroSigner(&signer)

	group, err := v.builder.FundingGroup(
		ctx, v.funding, signer, initialBalance,
	)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}

	if err := v.submit(ctx, group); err != nil {
		return ledger.ConfirmationResult{}, err
	}

	// The group confirms as one unit, so awaiting the funding payment
	// covers the opt-out as well.
	result, err := v.poller.WaitForConfirmation(ctx, group.TxIDs[0])
	if err != nil {
		return result, err
	}

	log.Infof("Funded custodial account %v with %d in round %d",
		account.Address, initialBalance, result.ConfirmedRound)

	return result, nil
}

// MintReceipt is the outcome of a confirmed mint batch.
type MintReceipt struct {
	// AssetIDs are the ledger ids of the created assets, in edition
	// order.
	AssetIDs []uint64

	// TxIDs are the creation transaction ids, in edition order.
	TxIDs []string

	// ConfirmedRound is the round the batch confirmed in.
	ConfirmedRound uint64

	// CreatorAddress is the address that minted the batch and holds the
	// created assets.
	CreatorAddress string

	// Creator is the sealed ephemeral creator account, set only when the
	// batch was minted with WithEphemeralCreator. Its holdings are moved
	// on sale via TransferViaClawback.
	Creator *custody.Account
}

// mintOptions collects the optional settings of MintEditions.
type mintOptions struct {
	creatorPassphrase string
	useEphemeral      bool
}

// MintOption is a functional option for MintEditions.
type MintOption func(*mintOptions)

// WithEphemeralCreator makes the mint batch originate from a freshly
// generated account funded for exactly this batch, instead of the funding
// account itself. The creator's recovery phrase is sealed with the passed
// passphrase and returned in the receipt; the creator keeps holding the
// minted assets until they're sold.
func WithEphemeralCreator(passphrase string) MintOption {
	return func(o *mintOptions) {
		o.useEphemeral = true
		o.creatorPassphrase = passphrase
	}
}

// MintEditions mints a run of NFT editions as one atomic batch, waits for
// confirmation and resolves the created asset ids. The funding account
// becomes manager, reserve, freeze and clawback authority of every asset
// regardless of who minted.
func (v *Vault) MintEditions(ctx context.Context,
	editions []*mintgarden.EditionSpec,
	opts ...MintOption) (*MintReceipt, error) {

	var options mintOptions
	for _, opt := range opts {
		opt(&options)
	}

	creator := v.funding
	receipt := &MintReceipt{
		CreatorAddress: v.funding.Address.String(),
	}

	if options.useEphemeral {
		ephemeral, signer, err := v.stageEphemeralCreator(
			ctx, options.creatorPassphrase, len(editions),
		)
		if err != nil {
			return nil, err
		}
		defer custody.ZeroSigner(signer)

		creator = *signer
		receipt.Creator = ephemeral
		receipt.CreatorAddress = ephemeral.Address
	}

	group, err := v.builder.MintGroup(
		ctx, creator, v.funding.Address.String(), editions,
	)
	if err != nil {
		return nil, err
	}

	if err := v.submit(ctx, group); err != nil {
		// The staged creator is useless if its batch never entered the
		// ledger, so reclaim its balance right away.
		if options.useEphemeral {
			v.reclaimCreator(ctx, creator)
		}

		return nil, err
	}

	// All members confirm in the same round, so one wait covers the
	// whole batch.
	result, err := v.poller.WaitForConfirmation(ctx, group.TxIDs[0])
	if err != nil {
		return nil, err
	}
	receipt.ConfirmedRound = result.ConfirmedRound

	receipt.TxIDs = group.TxIDs
	receipt.AssetIDs, err = v.resolveAssetIDs(ctx, group.TxIDs)
	if err != nil {
		return nil, err
	}

	log.Infof("Minted %d edition(s) in round %d, creator %v",
		len(editions), receipt.ConfirmedRound, receipt.CreatorAddress)

	return receipt, nil
}

// stageEphemeralCreator generates, seals and funds a throwaway creator
// account sized for a batch of the given size. The returned signer must be
// wiped by the caller.
func (v *Vault) stageEphemeralCreator(ctx context.Context, passphrase string,
	numEditions int) (*custody.Account, *crypto.Account, error) {

	// The creator needs its own minimum balance, one minimum balance
	// increase per created asset and one flat fee per creation
	// transaction.
	required := uint64(mintgarden.MinAccountBalance) +
		uint64(numEditions)*mintgarden.MinAccountBalance +
		uint64(numEditions)*mintgarden.FlatTxnFee

	info, err := v.cfg.Bridge.AccountInfo(ctx, v.funding.Address.String())
	if err != nil {
		return nil, nil, err
	}
	if info.Balance < required+mintgarden.MinAccountBalance {
		return nil, nil, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientFunds, info.Balance,
			required+mintgarden.MinAccountBalance)
	}

	ephemeral, err := custody.GenerateAccount(passphrase)
	if err != nil {
		return nil, nil, err
	}
	signer, err := custody.RecoverSigner(
		ephemeral.EncryptedPhrase, passphrase,
	)
	if err != nil {
		return nil, nil, err
	}

	group, err := v.builder.FundingGroup(ctx, v.funding, signer, required)
	if err != nil {
		custody.ZeroSigner(&signer)
		return nil, nil, err
	}
	if err := v.submit(ctx, group); err != nil {
		custody.ZeroSigner(&signer)
		return nil, nil, err
	}
	if _, err := v.poller.WaitForConfirmation(
		ctx, group.TxIDs[0],
	); err != nil {
		custody.ZeroSigner(&signer)
		return nil, nil, err
	}

	log.Debugf("Staged ephemeral creator %v with %d for %d edition(s)",
		ephemeral.Address, required, numEditions)

	return ephemeral, &signer, nil
}

// reclaimCreator closes a staged creator back out to the funding account on a
// best-effort basis after a failed batch submission.
func (v *Vault) reclaimCreator(ctx context.Context, creator crypto.Account) {
	group, err := v.builder.CloseOutGroup(
		ctx, creator, v.funding.Address.String(),
	)
	if err == nil {
		err = v.submit(ctx, group)
	}
	if err != nil {
		log.Errorf("Unable to reclaim staged creator %v: %v",
			creator.Address, err)
	}
}

// resolveAssetIDs looks up the created asset index of every confirmed
// creation transaction, concurrently, preserving edition order.
func (v *Vault) resolveAssetIDs(ctx context.Context,
	txIDs []string) ([]uint64, error) {

	assetIDs := make([]uint64, len(txIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, txID := range txIDs {
		i, txID := i, txID
		eg.Go(func() error {
			result, err := v.cfg.Bridge.PendingTransaction(
				egCtx, txID,
			)
			if err != nil {
				return err
			}
			if result.AssetIndex == 0 {
				return fmt.Errorf("confirmed txn %v created "+
					"no asset", txID)
			}

			assetIDs[i] = result.AssetIndex

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return assetIDs, nil
}

// TransferViaClawback moves one unit of a minted asset from its current
// holder into a recipient's custodial account, atomically funding the
// recipient's opt-in along the way. An empty holder selects the funding
// account. The recipient's passphrase is needed because the recipient signs
// its own opt-in.
func (v *Vault) TransferViaClawback(ctx context.Context,
	recipient *custody.Account, passphrase string, assetID uint64,
	holder string) (ledger.ConfirmationResult, error) {

	record, err := v.cfg.Bridge.AssetInfo(ctx, assetID)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	if record == nil {
		return ledger.ConfirmationResult{}, fmt.Errorf("%w: %d",
			ErrAssetNotFound, assetID)
	}

	if holder == "" {
		holder = v.funding.Address.String()
	}

	signer, err := custody.RecoverSigner(
		recipient.EncryptedPhrase, passphrase,
	)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	defer custody.ZeroSigner(&signer)

	group, err := v.builder.ClawbackGroup(
		ctx, v.funding, signer, assetID, holder,
	)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}

	if err := v.submit(ctx, group); err != nil {
		return ledger.ConfirmationResult{}, err
	}

	// Await the clawback itself; the funding payment and opt-in share
	// its fate.
	result, err := v.poller.WaitForConfirmation(ctx, group.TxIDs[2])
	if err != nil {
		return result, err
	}

	log.Infof("Asset %d moved from %v to %v in round %d", assetID,
		holder, recipient.Address, result.ConfirmedRound)

	return result, nil
}

// TransferBetweenHolders claws one unit of an asset from one custodial
// holder straight to another already opted-in address, used for trades
// between marketplace users.
func (v *Vault) TransferBetweenHolders(ctx context.Context, assetID uint64,
	from, to string) (ledger.ConfirmationResult, error) {

	fromInfo, err := v.cfg.Bridge.AccountInfo(ctx, from)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	if !fromInfo.Holds(assetID) {
		return ledger.ConfirmationResult{}, fmt.Errorf("holder %v "+
			"does not hold asset %d", from, assetID)
	}

	toInfo, err := v.cfg.Bridge.AccountInfo(ctx, to)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	if !toInfo.OptedIn(assetID) {
		return ledger.ConfirmationResult{}, fmt.Errorf("recipient %v "+
			"has not opted into asset %d", to, assetID)
	}

	group, err := v.builder.HolderTransferGroup(
		ctx, v.funding, assetID, from, to,
	)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}

	if err := v.submit(ctx, group); err != nil {
		return ledger.ConfirmationResult{}, err
	}

	result, err := v.poller.WaitForConfirmation(ctx, group.TxIDs[0])
	if err != nil {
		return result, err
	}

	log.Infof("Asset %d moved from %v to %v in round %d", assetID, from,
		to, result.ConfirmedRound)

	return result, nil
}

// PrepareImport assembles the unsigned group that brings an asset held by an
// external wallet into a recipient's custodial account. The opt-in funding is
// sized up to cover the recipient's base minimum balance when the account
// hasn't been seeded on the ledger yet. The external holder signs its
// transfer out-of-band; CompleteImport signs the rest and submits.
func (v *Vault) PrepareImport(ctx context.Context, recipient *custody.Account,
	assetID uint64, externalHolder string) (*mintgarden.UnsignedGroup,
	error) {

	record, err := v.cfg.Bridge.AssetInfo(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}

	info, err := v.cfg.Bridge.AccountInfo(ctx, recipient.Address)
	if err != nil {
		return nil, err
	}

	group, err := v.builder.ImportGroup(
		ctx, v.funding.Address.String(), recipient.Address, assetID,
		externalHolder, info.Balance == 0,
	)
	if err != nil {
		return nil, err
	}

	log.Infof("Prepared import of asset %d from %v to %v", assetID,
		externalHolder, recipient.Address)

	return group, nil
}

// CompleteImport signs the custody-controlled members of a prepared import
// group, merges the externally countersigned members and submits the group,
// awaiting the holder's transfer. externalSigned maps member index to the
// signed raw bytes produced by the external wallet.
func (v *Vault) CompleteImport(ctx context.Context,
	group *mintgarden.UnsignedGroup, recipient *custody.Account,
	passphrase string,
	externalSigned map[int][]byte) (ledger.ConfirmationResult, error) {

	signer, err := custody.RecoverSigner(
		recipient.EncryptedPhrase, passphrase,
	)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	defer custody.ZeroSigner(&signer)

	signedTxns := make([][]byte, len(group.Txns))
	for i, txn := range group.Txns {
		switch group.Signers[i] {
		case v.funding.Address.String():
			_, signedTxns[i], err = crypto.SignTransaction(
				v.funding.PrivateKey, txn,
			)

		case recipient.Address:
			_, signedTxns[i], err = crypto.SignTransaction(
				signer.PrivateKey, txn,
			)

		default:
			signed, ok := externalSigned[i]
			if !ok {
				return ledger.ConfirmationResult{},
					fmt.Errorf("member %d must be signed "+
						"by %v", i, group.Signers[i])
			}
			signedTxns[i] = signed
		}
		if err != nil {
			return ledger.ConfirmationResult{}, fmt.Errorf(
				"unable to sign group member %d: %w", i, err,
			)
		}
	}

	if err := v.submit(ctx, &mintgarden.SignedGroup{
		TxIDs:      group.TxIDs,
		SignedTxns: signedTxns,
	}); err != nil {
		return ledger.ConfirmationResult{}, err
	}

	// Await the holder's closing transfer, the last member; the funding
	// payment and opt-in share its fate.
	result, err := v.poller.WaitForConfirmation(
		ctx, group.TxIDs[len(group.TxIDs)-1],
	)
	if err != nil {
		return result, err
	}

	log.Infof("Import into %v confirmed in round %d", recipient.Address,
		result.ConfirmedRound)

	return result, nil
}

// ExportAsset releases an asset from a custodial account to an external
// wallet the marketplace doesn't control. The recipient must already have
// opted into the asset. The owner's minimum balance freed by the opt-out is
// refunded to the funding account within the same atomic group.
func (v *Vault) ExportAsset(ctx context.Context, owner *custody.Account,
	passphrase string, assetID uint64,
	recipient string) (ledger.ConfirmationResult, error) {

	record, err := v.cfg.Bridge.AssetInfo(ctx, assetID)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	if record == nil {
		return ledger.ConfirmationResult{}, fmt.Errorf("%w: %d",
			ErrAssetNotFound, assetID)
	}

	recipientInfo, err := v.cfg.Bridge.AccountInfo(ctx, recipient)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	if !recipientInfo.OptedIn(assetID) {
		return ledger.ConfirmationResult{}, fmt.Errorf("recipient %v "+
			"has not opted into asset %d", recipient, assetID)
	}

	signer, err := custody.RecoverSigner(owner.EncryptedPhrase, passphrase)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	defer custody.ZeroSigner(&signer)

	group, err := v.builder.ExportGroup(
		ctx, v.funding, signer, assetID, recipient,
	)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}

	if err := v.submit(ctx, group); err != nil {
		return ledger.ConfirmationResult{}, err
	}

	result, err := v.poller.WaitForConfirmation(ctx, group.TxIDs[2])
	if err != nil {
		return result, err
	}

	log.Infof("Asset %d exported from %v to %v in round %d", assetID,
		owner.Address, recipient, result.ConfirmedRound)

	return result, nil
}

// CloseAccount closes a custodial account out, sending its remaining balance
// to the given address. An empty closeTo selects the funding account. The
// account must not hold any assets.
func (v *Vault) CloseAccount(ctx context.Context, account *custody.Account,
	passphrase, closeTo string) (ledger.ConfirmationResult, error) {

	if closeTo == "" {
		closeTo = v.funding.Address.String()
	}

	info, err := v.cfg.Bridge.AccountInfo(ctx, account.Address)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	for _, holding := range info.Assets {
		if holding.Amount > 0 {
			return ledger.ConfirmationResult{}, fmt.Errorf(
				"account %v still holds asset %d",
				account.Address, holding.AssetID,
			)
		}
	}

	signer, err := custody.RecoverSigner(account.EncryptedPhrase, passphrase)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}
	defer custody.ZeroSigner(&signer)

	group, err := v.builder.CloseOutGroup(ctx, signer, closeTo)
	if err != nil {
		return ledger.ConfirmationResult{}, err
	}

	if err := v.submit(ctx, group); err != nil {
		return ledger.ConfirmationResult{}, err
	}

	result, err := v.poller.WaitForConfirmation(ctx, group.TxIDs[0])
	if err != nil {
		return result, err
	}

	log.Infof("Closed custodial account %v out to %v in round %d",
		account.Address, closeTo, result.ConfirmedRound)

	return result, nil
}

// AssetRecord fetches the parameters of a minted asset, returning
// ErrAssetNotFound when the ledger doesn't know the index.
func (v *Vault) AssetRecord(ctx context.Context,
	assetID uint64) (*ledger.AssetRecord, error) {

	record, err := v.cfg.Bridge.AssetInfo(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}

	return record, nil
}

// AccountInfo fetches the current ledger state of an account.
func (v *Vault) AccountInfo(ctx context.Context,
	address string) (ledger.AccountInfo, error) {

	return v.cfg.Bridge.AccountInfo(ctx, address)
}

// MinBalance computes the minimum balance requirement implied by an
// account's current state: the base requirement, one increase per asset
// position and created asset, plus the application schema charges.
func MinBalance(info *ledger.AccountInfo) uint64 {
	const (
		appFlatCost   = 100_000
		byteSliceCost = 50_000
		uintCost      = 28_500
	)

	return mintgarden.MinAccountBalance +
		mintgarden.MinAccountBalance*uint64(len(info.Assets)) +
		mintgarden.MinAccountBalance*info.CreatedAssets +
		appFlatCost*(info.OptedInApps+info.CreatedApps) +
		byteSliceCost*info.AppByteSlices +
		uintCost*info.AppUints
}

// submit hands a signed group to the node, logging the transaction ids of a
// rejected submission in full since the raw bytes are gone at that point.
func (v *Vault) submit(ctx context.Context, group *mintgarden.SignedGroup) error {
	if err := v.cfg.Bridge.SubmitRawGroup(
		ctx, group.SignedTxns...,
	); err != nil {
		log.Errorf("Group submission rejected, txids=%v: %v",
			group.TxIDs, err)

		return err
	}

	return nil
}
