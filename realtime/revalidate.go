package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/collabhq/realtime-go/audit"
)

// revalidateLoop re-verifies the captured credential for as long as the
// session lives. The loop stands down silently when the session leaves the
// registry and tears the session down when the credential stops verifying.
func (m *Manager) revalidateLoop(ctx context.Context, lc *lifecycle) {
	defer m.wg.Done()
	t := time.NewTicker(m.revalidateInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !m.revalidateOnce(ctx, lc) {
				return
			}
		}
	}
}

// revalidateOnce performs one re-check and reports whether the task should
// keep running.
func (m *Manager) revalidateOnce(ctx context.Context, lc *lifecycle) bool {
	connID := lc.conn.ID()

	// The registry is the source of truth: a session torn down between
	// ticks stands the task down before it acts on anything.
	_, ok, err := m.registry.Get(ctx, connID)
	if err != nil {
		m.log.WarnContext(ctx, "revalidate.registry.fail",
			slog.String("conn_id", connID),
			slog.String("err", err.Error()))
		return true // transient; retry next tick
	}
	if !ok {
		return false
	}

	if _, err := m.verifier.VerifyToken(ctx, lc.token); err != nil {
		if ctx.Err() != nil {
			return false // teardown raced the verify
		}
		cause := fmt.Errorf("%w: %v", ErrRevalidationFailed, err)
		m.metrics.revalidation("failure")
		m.sink.Record(ctx, audit.Entry{
			Time: m.clock(), Action: audit.ActionRevalidate, Outcome: audit.OutcomeRefused,
			Reason: reasonCode(cause), Origin: lc.origin, UserID: lc.userID,
			ProjectID: lc.projectID, ConnID: connID, Detail: cause.Error(),
		})
		m.log.WarnContext(ctx, "revalidate.fail",
			slog.String("conn_id", connID),
			slog.String("err", err.Error()))
		m.teardown(ctx, connID, lc, "revalidation_failed", PublicMessage(cause))
		return false
	}

	ok, err = m.registry.SetRevalidated(ctx, connID, m.clock())
	if err != nil {
		m.log.WarnContext(ctx, "revalidate.registry.fail",
			slog.String("conn_id", connID),
			slog.String("err", err.Error()))
		return true
	}
	if !ok {
		return false // vanished mid-check; do not resurrect
	}
	m.metrics.revalidation("success")
	m.log.DebugContext(ctx, "revalidate.ok", slog.String("conn_id", connID))
	return true
}
