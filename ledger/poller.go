package ledger

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultMaxWaitRounds is the default confirmation round budget. A
	// transaction that hasn't reached a terminal state after this many
	// observed rounds is reported as timed out.
	DefaultMaxWaitRounds = 5
)

var (
	// ErrConfirmationTimeout is returned when the round budget was
	// exhausted without a terminal outcome. The transaction may still
	// confirm later, so callers must treat this as "state unknown, check
	// again later" rather than a definite failure.
	ErrConfirmationTimeout = errors.New("too many rounds elapsed waiting " +
		"for confirmation")

	// ErrPoolRejected is returned when the node explicitly reported a
	// pool error for the transaction. This is terminal.
	ErrPoolRejected = errors.New("transaction rejected from pool")
)

// PollerConfig houses the dependencies and settings of a confirmation
// Poller.
type PollerConfig struct {
	// Bridge is the ledger node connection polled for confirmations.
	Bridge Bridge

	// MaxWaitRounds caps how many rounds a single wait observes before
	// giving up. Zero selects DefaultMaxWaitRounds.
	MaxWaitRounds uint64
}

// Poller drives a bounded polling loop against the ledger until a submitted
// transaction id is confirmed, explicitly rejected, or the round budget is
// exhausted. Confirmation is probabilistic within a round window, not
// instantaneous, so an unbounded wait could hang a request forever if the
// transaction silently fell out of the pool.
type Poller struct {
	cfg PollerConfig
}

// NewPoller creates a confirmation poller from the passed config.
func NewPoller(cfg *PollerConfig) *Poller {
	poller := &Poller{
		cfg: *cfg,
	}
	if poller.cfg.MaxWaitRounds == 0 {
		poller.cfg.MaxWaitRounds = DefaultMaxWaitRounds
	}

	return poller
}

// WaitForConfirmation blocks until the transaction reaches a terminal
// state or the round budget runs out. The pending state is checked exactly
// once per observed round, starting with the round current at call time, so
// a budget of N means N pending lookups across N distinct rounds.
//
// On a pool rejection the terminal ConfirmationResult is returned alongside
// ErrPoolRejected so callers still see the node's reason.
func (p *Poller) WaitForConfirmation(ctx context.Context,
	txID string) (ConfirmationResult, error) {

	var (
		lastRound uint64
		err       error
	)
	for observed := uint64(0); observed < p.cfg.MaxWaitRounds; observed++ {
		// The first iteration samples the node's current round; every
		// later one blocks until the next round has been sealed.
		if observed == 0 {
			lastRound, err = p.cfg.Bridge.CurrentRound(ctx)
		} else {
			lastRound, err = p.cfg.Bridge.WaitForRoundAfter(
				ctx, lastRound,
			)
		}
		if err != nil {
			return ConfirmationResult{}, err
		}

		result, err := p.cfg.Bridge.PendingTransaction(ctx, txID)
		if err != nil {
			return ConfirmationResult{}, err
		}

		switch {
		case result.ConfirmedRound > 0:
			log.Debugf("Transaction %v confirmed in round %d "+
				"after observing %d round(s)", txID,
				result.ConfirmedRound, observed+1)

			return result, nil

		case result.PoolError != "":
			log.Errorf("Transaction %v rejected from pool: %v",
				txID, result.PoolError)

			return result, fmt.Errorf("%w: txid=%v: %v",
				ErrPoolRejected, txID, result.PoolError)
		}

		log.Tracef("Transaction %v still pending at round %d "+
			"(observed %d/%d)", txID, lastRound, observed+1,
			p.cfg.MaxWaitRounds)
	}

	return ConfirmationResult{}, fmt.Errorf("%w: txid=%v after %d rounds",
		ErrConfirmationTimeout, txID, p.cfg.MaxWaitRounds)
}
