package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPoller(t *testing.T,
	maxRounds uint64) (*Poller, *MockBridge) {

	t.Helper()

	bridge := NewMockBridge()
	poller := NewPoller(&PollerConfig{
		Bridge:        bridge,
		MaxWaitRounds: maxRounds,
	})

	return poller, bridge
}

// TestPollerImmediateConfirmation tests that a transaction already confirmed
// at call time is reported without waiting for any further rounds.
func TestPollerImmediateConfirmation(t *testing.T) {
	t.Parallel()

	poller, bridge := newTestPoller(t, 5)
	bridge.Confirm("txn-1", 7, 0)

	result, err := poller.WaitForConfirmation(context.Background(), "txn-1")
	require.NoError(t, err)
	require.EqualValues(t, 7, result.ConfirmedRound)

	// One status probe, one pending lookup, no round waits.
	require.Equal(t, 1, bridge.CurrentRoundCalls)
	require.Equal(t, 1, bridge.PendingCalls)
	require.Zero(t, bridge.WaitCalls)
}

// TestPollerBoundedRounds tests that the wait observes exactly the budgeted
// number of rounds, one pending lookup per round, then times out.
func TestPollerBoundedRounds(t *testing.T) {
	t.Parallel()

	const maxRounds = 5

	poller, bridge := newTestPoller(t, maxRounds)

	_, err := poller.WaitForConfirmation(context.Background(), "txn-lost")
	require.ErrorIs(t, err, ErrConfirmationTimeout)

	// The first round is sampled from the node status, every later one
	// comes from a blocking round wait. The pending state is checked
	// exactly once per observed round.
	require.Equal(t, 1, bridge.CurrentRoundCalls)
	require.Equal(t, maxRounds-1, bridge.WaitCalls)
	require.Equal(t, maxRounds, bridge.PendingCalls)

	// The mock seals one round per wait, so the observed rounds were
	// strictly increasing.
	require.EqualValues(t, maxRounds, bridge.Round)
}

// slowConfirmBridge reports a transaction as pending for a fixed number of
// lookups before handing out the underlying mock's answer.
type slowConfirmBridge struct {
	*MockBridge

	pendingFor int
}

func (s *slowConfirmBridge) PendingTransaction(ctx context.Context,
	txID string) (ConfirmationResult, error) {

	if s.MockBridge.PendingCalls < s.pendingFor {
		s.MockBridge.PendingCalls++
		return ConfirmationResult{}, nil
	}

	return s.MockBridge.PendingTransaction(ctx, txID)
}

// TestPollerLateConfirmation tests a transaction that confirms partway
// through the round budget.
func TestPollerLateConfirmation(t *testing.T) {
	t.Parallel()

	bridge := NewMockBridge()
	bridge.Confirm("txn-slow", 9, 0)
	slow := &slowConfirmBridge{
		MockBridge: bridge,
		pendingFor: 2,
	}
	poller := NewPoller(&PollerConfig{
		Bridge:        slow,
		MaxWaitRounds: 5,
	})

	result, err := poller.WaitForConfirmation(
		context.Background(), "txn-slow",
	)
	require.NoError(t, err)
	require.EqualValues(t, 9, result.ConfirmedRound)

	// Two pending rounds, then the confirmation on the third lookup.
	require.Equal(t, 3, bridge.PendingCalls)
	require.Equal(t, 1, bridge.CurrentRoundCalls)
	require.Equal(t, 2, bridge.WaitCalls)
}

// TestPollerPoolRejection tests that an explicit pool error ends the wait
// immediately with the node's reason attached.
func TestPollerPoolRejection(t *testing.T) {
	t.Parallel()

	poller, bridge := newTestPoller(t, 5)
	bridge.RejectFromPool("txn-bad", "overspend")

	result, err := poller.WaitForConfirmation(context.Background(), "txn-bad")
	require.ErrorIs(t, err, ErrPoolRejected)
	require.Contains(t, err.Error(), "overspend")
	require.Equal(t, "overspend", result.PoolError)

	// Rejection is terminal, no further rounds are observed.
	require.Equal(t, 1, bridge.PendingCalls)
	require.Zero(t, bridge.WaitCalls)
}

// TestConfirmationIdempotent tests that a confirmed transaction id keeps
// reporting the same terminal state on repeated lookups.
func TestConfirmationIdempotent(t *testing.T) {
	t.Parallel()

	bridge := NewMockBridge()
	bridge.AutoConfirmRound = 12
	bridge.NextAssetIndex = 42

	ctx := context.Background()
	first, err := bridge.PendingTransaction(ctx, "txn-1")
	require.NoError(t, err)
	require.True(t, first.Terminal())

	for i := 0; i < 3; i++ {
		again, err := bridge.PendingTransaction(ctx, "txn-1")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

// TestPollerDefaultBudget tests that a zero budget selects the default.
func TestPollerDefaultBudget(t *testing.T) {
	t.Parallel()

	poller, bridge := newTestPoller(t, 0)

	_, err := poller.WaitForConfirmation(context.Background(), "txn-lost")
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	require.Equal(t, DefaultMaxWaitRounds, bridge.PendingCalls)
}
