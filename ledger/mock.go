package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// MockBridge is an in-memory Bridge used by the tests of this and the
// surrounding packages. Confirmations are either programmed per transaction
// id, or handed out automatically to every queried id when AutoConfirmRound
// is set.
type MockBridge struct {
	mu sync.Mutex

	// Round is the mock's current round. WaitForRoundAfter seals one new
	// round per call.
	Round uint64

	// Params is the snapshot handed out by SuggestedParams.
	Params types.SuggestedParams

	// SubmitErr, when set, is returned by SubmitRawGroup to simulate a
	// node-side rejection of the raw bytes.
	SubmitErr error

	// Submitted records every submitted group in order.
	Submitted [][][]byte

	// AutoConfirmRound, when non-zero, makes PendingTransaction report
	// every unprogrammed transaction id as confirmed in that round.
	AutoConfirmRound uint64

	// NextAssetIndex, when non-zero, assigns sequential asset indexes to
	// auto-confirmed transactions, one per distinct id.
	NextAssetIndex uint64

	// Call counters.
	ParamsCalls       int
	PendingCalls      int
	CurrentRoundCalls int
	WaitCalls         int

	confirmations map[string]ConfirmationResult
	autoAssets    map[string]uint64
	accounts      map[string]AccountInfo
	assets        map[uint64]*AssetRecord
}

// NewMockBridge creates a mock bridge with a plausible suggested-params
// snapshot.
func NewMockBridge() *MockBridge {
	var genesisHash [32]byte
	copy(genesisHash[:], []byte("mockledger-genesis-hash-32-bytes"))

	return &MockBridge{
		Round: 1,
		Params: types.SuggestedParams{
			Fee:             0,
			GenesisID:       "mocknet-v1",
			GenesisHash:     genesisHash[:],
			FirstRoundValid: 1,
			LastRoundValid:  1001,
			FlatFee:         false,
			MinFee:          1000,
		},
		confirmations: make(map[string]ConfirmationResult),
		autoAssets:    make(map[string]uint64),
		accounts:      make(map[string]AccountInfo),
		assets:        make(map[uint64]*AssetRecord),
	}
}

// Confirm programs a terminal confirmation for the given transaction id.
func (m *MockBridge) Confirm(txID string, round, assetIndex uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.confirmations[txID] = ConfirmationResult{
		ConfirmedRound: round,
		AssetIndex:     assetIndex,
	}
}

// RejectFromPool programs an explicit pool rejection for the given
// transaction id.
func (m *MockBridge) RejectFromPool(txID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.confirmations[txID] = ConfirmationResult{
		PoolError: reason,
	}
}

// SetAccount seeds the account state returned by AccountInfo.
func (m *MockBridge) SetAccount(info AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[info.Address] = info
}

// SetAsset seeds the asset record returned by AssetInfo.
func (m *MockBridge) SetAsset(record *AssetRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets[record.AssetID] = record
}

// SuggestedParams returns the canned snapshot.
func (m *MockBridge) SuggestedParams(
	_ context.Context) (types.SuggestedParams, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ParamsCalls++

	return m.Params, nil
}

// SubmitRawGroup records the submitted group.
func (m *MockBridge) SubmitRawGroup(_ context.Context,
	signedTxns ...[]byte) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SubmitErr != nil {
		return m.SubmitErr
	}

	group := make([][]byte, len(signedTxns))
	copy(group, signedTxns)
	m.Submitted = append(m.Submitted, group)

	return nil
}

// PendingTransaction returns the programmed or auto-assigned confirmation
// state for the id, or a pending (zero) result.
func (m *MockBridge) PendingTransaction(_ context.Context,
	txID string) (ConfirmationResult, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.PendingCalls++

	if result, ok := m.confirmations[txID]; ok {
		return result, nil
	}

	if m.AutoConfirmRound != 0 {
		result := ConfirmationResult{
			ConfirmedRound: m.AutoConfirmRound,
		}
		if m.NextAssetIndex != 0 {
			index, ok := m.autoAssets[txID]
			if !ok {
				index = m.NextAssetIndex
				m.NextAssetIndex++
				m.autoAssets[txID] = index
			}
			result.AssetIndex = index
		}

		// Memoize so repeated lookups stay idempotent.
		m.confirmations[txID] = result

		return result, nil
	}

	return ConfirmationResult{}, nil
}

// AccountInfo returns the seeded account state.
func (m *MockBridge) AccountInfo(_ context.Context,
	address string) (AccountInfo, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.accounts[address]
	if !ok {
		// Unknown accounts exist on the ledger with a zero balance.
		return AccountInfo{Address: address}, nil
	}

	return info, nil
}

// AssetInfo returns the seeded asset record, or (nil, nil) when unknown.
func (m *MockBridge) AssetInfo(_ context.Context,
	assetIndex uint64) (*AssetRecord, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.assets[assetIndex]
	if !ok {
		return nil, nil
	}

	return record, nil
}

// CurrentRound returns the mock's current round.
func (m *MockBridge) CurrentRound(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CurrentRoundCalls++

	return m.Round, nil
}

// WaitForRoundAfter seals one new round and returns it.
func (m *MockBridge) WaitForRoundAfter(_ context.Context,
	round uint64) (uint64, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.WaitCalls++

	if round >= m.Round {
		m.Round = round + 1
	}

	return m.Round, nil
}

// SubmittedTxnCount returns the total number of transactions across all
// submitted groups.
func (m *MockBridge) SubmittedTxnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int
	for _, group := range m.Submitted {
		count += len(group)
	}

	return count
}

// LastSubmitted returns the most recently submitted group.
func (m *MockBridge) LastSubmitted() ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Submitted) == 0 {
		return nil, fmt.Errorf("no groups submitted")
	}

	return m.Submitted[len(m.Submitted)-1], nil
}

// A compile time assertion to ensure MockBridge meets the Bridge interface.
var _ Bridge = (*MockBridge)(nil)
