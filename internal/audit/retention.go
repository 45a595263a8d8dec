package audit

import (
	"context"
	"errors"
	"time"

	"storozh.org/internal/obs"
)

// Policy is the two-tier retention of the log. With KeepArchive false,
// expired entries are discarded instead of archived.
type Policy struct {
	Primary     time.Duration
	Archive     time.Duration
	KeepArchive bool
	Interval    time.Duration
}

// DefaultPolicy keeps 48h in the log and another 48h in the archive.
func DefaultPolicy() Policy {
	return Policy{
		Primary:     48 * time.Hour,
		Archive:     96 * time.Hour,
		KeepArchive: true,
		Interval:    time.Hour,
	}
}

func (p Policy) validate() error {
	if p.Primary <= 0 {
		return errors.New("audit: primary window must be positive")
	}
	if p.KeepArchive && p.Archive <= p.Primary {
		return errors.New("audit: archive window must exceed primary window")
	}
	if p.Interval <= 0 {
		return errors.New("audit: sweep interval must be positive")
	}
	return nil
}

// SweepPlan tells the store what to move and drop. Entries older than
// PrimaryCutoff leave the log; with Archive set those not older than
// ArchiveCutoff go to the archive and archive rows older than it are removed.
type SweepPlan struct {
	PrimaryCutoff time.Time
	ArchiveCutoff time.Time
	Archive       bool
}

// SweepResult counts affected rows.
type SweepResult struct {
	Archived  int64 `json:"archived"`
	Discarded int64 `json:"discarded"`
	Purged    int64 `json:"purged"`
}

// PlanAt derives the sweep plan for the given instant.
func (p Policy) PlanAt(now time.Time) SweepPlan {
	plan := SweepPlan{PrimaryCutoff: now.Add(-p.Primary), Archive: p.KeepArchive}
	if p.KeepArchive {
		plan.ArchiveCutoff = now.Add(-p.Archive)
	}
	return plan
}

// Sweep applies the retention policy once.
func (l *Log) Sweep(ctx context.Context) (SweepResult, error) {
	res, err := l.store.SweepEntries(ctx, l.policy.PlanAt(l.now()))
	if err != nil {
		obs.AuditSweeps.WithLabelValues("error").Inc()
		return SweepResult{}, err
	}
	obs.AuditSweeps.WithLabelValues("ok").Inc()
	obs.AuditSwept.WithLabelValues("archived").Add(float64(res.Archived))
	obs.AuditSwept.WithLabelValues("discarded").Add(float64(res.Discarded))
	obs.AuditSwept.WithLabelValues("purged").Add(float64(res.Purged))
	return res, nil
}

// Run sweeps immediately and then on every interval until ctx ends. A failed
// sweep is logged and retried on the next tick.
func (l *Log) Run(ctx context.Context) {
	ticker := time.NewTicker(l.policy.Interval)
	defer ticker.Stop()
	for {
		res, err := l.Sweep(ctx)
		if err != nil {
			obs.Error("audit sweep failed", map[string]any{"error": err})
		} else if res != (SweepResult{}) {
			obs.Info("audit sweep", map[string]any{
				"archived":  res.Archived,
				"discarded": res.Discarded,
				"purged":    res.Purged,
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
