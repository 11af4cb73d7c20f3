package tracker

import (
	"context"
	"fmt"

	"github.com/goodtune/weekwatch/internal/metrics"
	"github.com/goodtune/weekwatch/internal/presence"
)

// Reconcile repairs the open-session ledger after a restart. Sessions
// whose users are still present stay open with their original start time,
// so no presence is lost across the outage. Sessions whose users have
// left are closed at the current time through the normal crediting
// pipeline; the user gets credit up to now, which over-counts by at most
// the outage length but never silently discards a long session.
//
// Safe to call when the ledger is empty, and idempotent: a second call
// finds nothing left to repair.
//
// If the presence query fails, every session is kept open and the error
// is returned; the caller decides whether to retry or proceed.
func (t *Tracker) Reconcile(ctx context.Context, gateway presence.Gateway) error {
	present, err := gateway.Present(ctx)
	if err != nil {
		return fmt.Errorf("querying presence for reconciliation: %w", err)
	}

	presentSet := make(map[string]struct{}, len(present))
	for _, userID := range present {
		presentSet[userID] = struct{}{}
	}

	now := t.clock.Now().In(t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	var kept, closed int
	for userID := range t.open {
		if _, ok := presentSet[userID]; ok {
			kept++
			continue
		}
		t.closeLocked(userID, now, true)
		closed++
	}

	metrics.OpenSessions.Set(float64(len(t.open)))
	t.logger.Info().
		Int("kept", kept).
		Int("closed", closed).
		Msg("Reconciled persisted sessions against live presence")
	return nil
}
