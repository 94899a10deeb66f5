package mintgarden

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/require"

	"github.com/mintvaultlabs/mintvault/ledger"
)

var testHash = strings.Repeat("ab", 32)

func newTestBuilder(t *testing.T) (*GroupBuilder, *ledger.MockBridge) {
	t.Helper()

	bridge := ledger.NewMockBridge()
	builder := NewGroupBuilder(&GroupBuilderConfig{
		Bridge: bridge,
	})

	return builder, bridge
}

// decodeGroup unpacks the signed raw bytes of a group back into signed
// transactions.
func decodeGroup(t *testing.T, group *SignedGroup) []types.SignedTxn {
	t.Helper()

	decoded := make([]types.SignedTxn, len(group.SignedTxns))
	for i, raw := range group.SignedTxns {
		require.NoError(t, msgpack.Decode(raw, &decoded[i]))
	}

	return decoded
}

// requireSharedGroupID asserts all members carry the same non-zero group
// digest.
func requireSharedGroupID(t *testing.T, decoded []types.SignedTxn) {
	t.Helper()

	require.NotEqual(t, types.Digest{}, decoded[0].Txn.Group)
	for _, stxn := range decoded[1:] {
		require.Equal(t, decoded[0].Txn.Group, stxn.Txn.Group)
	}
}

// requireSignedBy asserts the raw member bytes carry a signature by the
// given account. Signing is deterministic, so re-signing the decoded
// transaction must reproduce the bytes exactly.
func requireSignedBy(t *testing.T, raw []byte, txn types.Transaction,
	signer crypto.Account) {

	t.Helper()

	_, expected, err := crypto.SignTransaction(signer.PrivateKey, txn)
	require.NoError(t, err)
	require.True(t, bytes.Equal(expected, raw))
}

// TestFundingGroup tests the shape of the custodial account seeding group:
// the funding payment with its fee surcharge and the staking opt-out, signed
// by their respective accounts and bound into one group.
func TestFundingGroup(t *testing.T) {
	t.Parallel()

	builder, bridge := newTestBuilder(t)
	funding := crypto.GenerateAccount()
	custodial := crypto.GenerateAccount()

	const initialBalance = 500_000

	group, err := builder.FundingGroup(
		context.Background(), funding, custodial, initialBalance,
	)
	require.NoError(t, err)
	require.Len(t, group.SignedTxns, 2)
	require.Len(t, group.TxIDs, 2)
	require.Equal(t, 1, bridge.ParamsCalls)

	decoded := decodeGroup(t, group)
	requireSharedGroupID(t, decoded)

	// The payment carries the initial balance plus exactly one flat fee,
	// so the new account can pay for its own opt-out.
	pay := decoded[0].Txn
	require.Equal(t, types.PaymentTx, pay.Type)
	require.Equal(t, funding.Address, pay.Sender)
	require.Equal(t, custodial.Address, pay.Receiver)
	require.EqualValues(t, initialBalance+FlatTxnFee, pay.Amount)
	require.Equal(t, types.Address{}, pay.CloseRemainderTo)

	// ARC-2 note: "<dapp>:j<json>" with the funding tag.
	note := string(pay.Note)
	require.True(t, strings.HasPrefix(note, DefaultDappName+":j"))
	require.Contains(t, note, `"t":"cifp"`)

	keyreg := decoded[1].Txn
	require.Equal(t, types.KeyRegistrationTx, keyreg.Type)
	require.Equal(t, custodial.Address, keyreg.Sender)
	require.True(t, keyreg.Nonparticipation)
	require.Contains(t, string(keyreg.Note), `"t":"cinp"`)

	requireSignedBy(t, group.SignedTxns[0], decoded[0].Txn, funding)
	requireSignedBy(t, group.SignedTxns[1], decoded[1].Txn, custodial)
}

// TestGroupIDBindsMembers tests that the group digest commits to the member
// list: identical inputs reproduce it, changing any member changes it.
func TestGroupIDBindsMembers(t *testing.T) {
	t.Parallel()

	builder, _ := newTestBuilder(t)
	funding := crypto.GenerateAccount()
	custodial := crypto.GenerateAccount()

	first, err := builder.FundingGroup(
		context.Background(), funding, custodial, 500_000,
	)
	require.NoError(t, err)
	same, err := builder.FundingGroup(
		context.Background(), funding, custodial, 500_000,
	)
	require.NoError(t, err)
	changed, err := builder.FundingGroup(
		context.Background(), funding, custodial, 600_000,
	)
	require.NoError(t, err)

	firstID := decodeGroup(t, first)[0].Txn.Group
	require.Equal(t, firstID, decodeGroup(t, same)[0].Txn.Group)
	require.NotEqual(t, firstID, decodeGroup(t, changed)[0].Txn.Group)
}

// TestMintGroup tests the batched edition mint: one single-unit asset per
// edition with the marketplace authority holding every asset role, all
// signed by the creator.
func TestMintGroup(t *testing.T) {
	t.Parallel()

	builder, bridge := newTestBuilder(t)
	creator := crypto.GenerateAccount()
	authority := crypto.GenerateAccount().Address.String()

	editions := make([]*EditionSpec, 3)
	for i := range editions {
		editions[i] = &EditionSpec{
			Code:          "PUCK0001",
			Edition:       uint64(i) + 1,
			TotalEditions: 3,
			URL:           "ipfs://QmTest",
			MetadataHash:  testHash,
		}
	}

	group, err := builder.MintGroup(
		context.Background(), creator, authority, editions,
	)
	require.NoError(t, err)
	require.Len(t, group.SignedTxns, 3)
	require.Equal(t, 1, bridge.ParamsCalls)

	decoded := decodeGroup(t, group)
	requireSharedGroupID(t, decoded)

	authorityAddr, err := types.DecodeAddress(authority)
	require.NoError(t, err)

	for i, stxn := range decoded {
		txn := stxn.Txn
		require.Equal(t, types.AssetConfigTx, txn.Type)
		require.Equal(t, creator.Address, txn.Sender)

		// Single-unit, indivisible, ARC-3 tagged.
		params := txn.AssetParams
		require.EqualValues(t, 1, params.Total)
		require.Zero(t, params.Decimals)
		require.False(t, params.DefaultFrozen)
		require.Equal(t, "PUCK0001", params.UnitName)
		require.Equal(t, fmt.Sprintf("PUCK0001 %d/3", i+1),
			params.AssetName)
		require.Equal(t, "ipfs://QmTest#arc3", params.URL)
		require.Equal(t, bytes.Repeat([]byte{0xab}, 32),
			params.MetadataHash[:])

		// The marketplace authority holds every role.
		require.Equal(t, authorityAddr, params.Manager)
		require.Equal(t, authorityAddr, params.Reserve)
		require.Equal(t, authorityAddr, params.Freeze)
		require.Equal(t, authorityAddr, params.Clawback)

		require.Contains(t, string(txn.Note), `"t":"nftc"`)
		require.Contains(t, string(txn.Note),
			fmt.Sprintf(`"e":%d`, i+1))

		requireSignedBy(t, group.SignedTxns[i], txn, creator)
	}
}

// TestMintGroupValidation tests the batch-level and per-edition guards.
func TestMintGroupValidation(t *testing.T) {
	t.Parallel()

	builder, _ := newTestBuilder(t)
	creator := crypto.GenerateAccount()
	authority := creator.Address.String()

	edition := func(mut func(*EditionSpec)) []*EditionSpec {
		spec := &EditionSpec{
			Code:          "PUCK0001",
			Edition:       1,
			TotalEditions: 1,
			URL:           "ipfs://QmTest",
			MetadataHash:  testHash,
		}
		mut(spec)

		return []*EditionSpec{spec}
	}

	_, err := builder.MintGroup(
		context.Background(), creator, authority, nil,
	)
	require.ErrorIs(t, err, ErrNoEditions)

	tooMany := make([]*EditionSpec, MaxGroupSize+1)
	for i := range tooMany {
		tooMany[i] = edition(func(*EditionSpec) {})[0]
	}
	_, err = builder.MintGroup(
		context.Background(), creator, authority, tooMany,
	)
	require.ErrorIs(t, err, ErrTooManyEditions)

	_, err = builder.MintGroup(
		context.Background(), creator, authority,
		edition(func(e *EditionSpec) {
			e.MetadataHash = "abcd"
		}),
	)
	require.ErrorIs(t, err, ErrInvalidMetadataHash)

	_, err = builder.MintGroup(
		context.Background(), creator, authority,
		edition(func(e *EditionSpec) {
			e.MetadataHash = "not-hex"
		}),
	)
	require.ErrorIs(t, err, ErrInvalidMetadataHash)

	_, err = builder.MintGroup(
		context.Background(), creator, authority,
		edition(func(e *EditionSpec) {
			e.Edition = 2
		}),
	)
	require.Error(t, err)

	_, err = builder.MintGroup(
		context.Background(), creator, authority,
		edition(func(e *EditionSpec) {
			e.URL = ""
		}),
	)
	require.Error(t, err)
}

// TestClawbackGroup tests the buy-side triplet: opt-in funding, zero-amount
// opt-in and the revocation, atomically bound and signed by the right
// parties.
func TestClawbackGroup(t *testing.T) {
	t.Parallel()

	builder, _ := newTestBuilder(t)
	authority := crypto.GenerateAccount()
	recipient := crypto.GenerateAccount()
	holder := crypto.GenerateAccount().Address

	const assetID = 1234

	group, err := builder.ClawbackGroup(
		context.Background(), authority, recipient, assetID,
		holder.String(),
	)
	require.NoError(t, err)
	require.Len(t, group.SignedTxns, 3)

	decoded := decodeGroup(t, group)
	requireSharedGroupID(t, decoded)

	// Payment covering the recipient's minimum balance increase plus its
	// opt-in fee.
	pay := decoded[0].Txn
	require.Equal(t, types.PaymentTx, pay.Type)
	require.Equal(t, authority.Address, pay.Sender)
	require.Equal(t, recipient.Address, pay.Receiver)
	require.EqualValues(t, MinAccountBalance+FlatTxnFee, pay.Amount)

	// Zero-amount self-transfer is the ledger's opt-in idiom.
	optIn := decoded[1].Txn
	require.Equal(t, types.AssetTransferTx, optIn.Type)
	require.Equal(t, recipient.Address, optIn.Sender)
	require.Equal(t, recipient.Address, optIn.AssetReceiver)
	require.EqualValues(t, assetID, optIn.XferAsset)
	require.Zero(t, optIn.AssetAmount)

	// Clawback moves one unit from the holder to the recipient, issued
	// by the authority.
	claw := decoded[2].Txn
	require.Equal(t, types.AssetTransferTx, claw.Type)
	require.Equal(t, authority.Address, claw.Sender)
	require.Equal(t, holder, claw.AssetSender)
	require.Equal(t, recipient.Address, claw.AssetReceiver)
	require.EqualValues(t, 1, claw.AssetAmount)

	requireSignedBy(t, group.SignedTxns[0], decoded[0].Txn, authority)
	requireSignedBy(t, group.SignedTxns[1], decoded[1].Txn, recipient)
	requireSignedBy(t, group.SignedTxns[2], decoded[2].Txn, authority)
}

// TestHolderTransferGroup tests the single-member trade group.
func TestHolderTransferGroup(t *testing.T) {
	t.Parallel()

	builder, _ := newTestBuilder(t)
	authority := crypto.GenerateAccount()
	from := crypto.GenerateAccount().Address
	to := crypto.GenerateAccount().Address

	group, err := builder.HolderTransferGroup(
		context.Background(), authority, 1234, from.String(),
		to.String(),
	)
	require.NoError(t, err)
	require.Len(t, group.SignedTxns, 1)

	decoded := decodeGroup(t, group)

	claw := decoded[0].Txn
	require.Equal(t, types.AssetTransferTx, claw.Type)
	require.Equal(t, authority.Address, claw.Sender)
	require.Equal(t, from, claw.AssetSender)
	require.Equal(t, to, claw.AssetReceiver)
	require.EqualValues(t, 1, claw.AssetAmount)

	requireSignedBy(t, group.SignedTxns[0], claw, authority)
}

// TestCloseOutGroup tests the account decommissioning payment.
func TestCloseOutGroup(t *testing.T) {
	t.Parallel()

	builder, _ := newTestBuilder(t)
	account := crypto.GenerateAccount()
	closeTo := crypto.GenerateAccount().Address

	group, err := builder.CloseOutGroup(
		context.Background(), account, closeTo.String(),
	)
	require.NoError(t, err)
	require.Len(t, group.SignedTxns, 1)

	decoded := decodeGroup(t, group)

	pay := decoded[0].Txn
	require.Equal(t, types.PaymentTx, pay.Type)
	require.Equal(t, account.Address, pay.Sender)
	require.Zero(t, pay.Amount)
	require.Equal(t, closeTo, pay.CloseRemainderTo)

	requireSignedBy(t, group.SignedTxns[0], pay, account)
}

// TestImportGroup tests the unsigned intake group: conditionally sized
// opt-in funding, the recipient's opt-in and the external holder's closing
// transfer, with the designated signer recorded per member.
func TestImportGroup(t *testing.T) {
	t.Parallel()

	builder, bridge := newTestBuilder(t)
	funding := crypto.GenerateAccount()
	recipient := crypto.GenerateAccount()
	external := crypto.GenerateAccount()

	const assetID = 1234

	group, err := builder.ImportGroup(
		context.Background(), funding.Address.String(),
		recipient.Address.String(), assetID,
		external.Address.String(), true,
	)
	require.NoError(t, err)
	require.Len(t, group.Txns, 3)
	require.Len(t, group.TxIDs, 3)
	require.Equal(t, 1, bridge.ParamsCalls)

	// All members carry the shared group id already.
	require.NotEqual(t, types.Digest{}, group.Txns[0].Group)
	for _, txn := range group.Txns[1:] {
		require.Equal(t, group.Txns[0].Group, txn.Group)
	}

	// A brand-new recipient gets its base minimum balance on top of the
	// opt-in cost.
	pay := group.Txns[0]
	require.Equal(t, types.PaymentTx, pay.Type)
	require.Equal(t, funding.Address, pay.Sender)
	require.Equal(t, recipient.Address, pay.Receiver)
	require.EqualValues(t, 2*MinAccountBalance+FlatTxnFee, pay.Amount)

	optIn := group.Txns[1]
	require.Equal(t, types.AssetTransferTx, optIn.Type)
	require.Equal(t, recipient.Address, optIn.Sender)
	require.Equal(t, recipient.Address, optIn.AssetReceiver)
	require.EqualValues(t, assetID, optIn.XferAsset)
	require.Zero(t, optIn.AssetAmount)

	// The external holder closes its position out to the recipient.
	transfer := group.Txns[2]
	require.Equal(t, types.AssetTransferTx, transfer.Type)
	require.Equal(t, external.Address, transfer.Sender)
	require.Equal(t, recipient.Address, transfer.AssetReceiver)
	require.Equal(t, recipient.Address, transfer.AssetCloseTo)
	require.EqualValues(t, 1, transfer.AssetAmount)

	require.Equal(t, []string{
		funding.Address.String(),
		recipient.Address.String(),
		external.Address.String(),
	}, group.Signers)

	// The precomputed transaction ids match what signing produces.
	txID, _, err := crypto.SignTransaction(
		external.PrivateKey, transfer,
	)
	require.NoError(t, err)
	require.Equal(t, group.TxIDs[2], txID)

	// An already seeded recipient only gets the opt-in cost.
	seeded, err := builder.ImportGroup(
		context.Background(), funding.Address.String(),
		recipient.Address.String(), assetID,
		external.Address.String(), false,
	)
	require.NoError(t, err)
	require.EqualValues(t, MinAccountBalance+FlatTxnFee,
		seeded.Txns[0].Amount)
}

// TestExportGroup tests the four-member release group: fee funding, the
// config clearing the custody roles, the closing transfer and the minimum
// balance refund.
func TestExportGroup(t *testing.T) {
	t.Parallel()

	builder, bridge := newTestBuilder(t)
	funding := crypto.GenerateAccount()
	owner := crypto.GenerateAccount()
	recipient := crypto.GenerateAccount().Address

	const assetID = 1234

	group, err := builder.ExportGroup(
		context.Background(), funding, owner, assetID,
		recipient.String(),
	)
	require.NoError(t, err)
	require.Len(t, group.SignedTxns, 4)
	require.Equal(t, 1, bridge.ParamsCalls)

	decoded := decodeGroup(t, group)
	requireSharedGroupID(t, decoded)

	// Fee funding for the owner's two transactions.
	pay := decoded[0].Txn
	require.Equal(t, types.PaymentTx, pay.Type)
	require.Equal(t, owner.Address, pay.Receiver)
	require.EqualValues(t, 2*FlatTxnFee, pay.Amount)

	// Freeze and reserve are dropped, manager and clawback stay with the
	// funding account.
	config := decoded[1].Txn
	require.Equal(t, types.AssetConfigTx, config.Type)
	require.EqualValues(t, assetID, config.ConfigAsset)
	require.Equal(t, funding.Address, config.AssetParams.Manager)
	require.Equal(t, funding.Address, config.AssetParams.Clawback)
	require.Equal(t, types.Address{}, config.AssetParams.Freeze)
	require.Equal(t, types.Address{}, config.AssetParams.Reserve)

	// The transfer closes the owner's position out to the recipient.
	transfer := decoded[2].Txn
	require.Equal(t, types.AssetTransferTx, transfer.Type)
	require.Equal(t, owner.Address, transfer.Sender)
	require.Equal(t, recipient, transfer.AssetReceiver)
	require.Equal(t, recipient, transfer.AssetCloseTo)
	require.EqualValues(t, 1, transfer.AssetAmount)

	// The freed minimum balance flows back to the funding account.
	refund := decoded[3].Txn
	require.Equal(t, types.PaymentTx, refund.Type)
	require.Equal(t, owner.Address, refund.Sender)
	require.Equal(t, funding.Address, refund.Receiver)
	require.EqualValues(t, MinAccountBalance, refund.Amount)

	requireSignedBy(t, group.SignedTxns[0], decoded[0].Txn, funding)
	requireSignedBy(t, group.SignedTxns[1], decoded[1].Txn, funding)
	requireSignedBy(t, group.SignedTxns[2], decoded[2].Txn, owner)
	requireSignedBy(t, group.SignedTxns[3], decoded[3].Txn, owner)
}
