package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/metrics"
)

// ReconcileReport lists what one reconciliation pass did.
type ReconcileReport struct {
	Finalized []int64 `json:"finalized"`
	Purged    []int64 `json:"purged"`
	Stalled   []int64 `json:"stalled"`
	Failed    []int64 `json:"failed,omitempty"`
}

// ReconcileService repairs messages left pending by an interrupted send.
type ReconcileService struct {
	messages domain.MessageRepository
	log      *zap.Logger
	now      func() time.Time
}

func NewReconcileService(messages domain.MessageRepository, log *zap.Logger) *ReconcileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconcileService{
		messages: messages,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReconcileOrphans looks at pending messages older than olderThan. A message
// whose deliveries are all present only missed its final state change and is
// marked delivered. A message with missing deliveries is purged together
// with the deliveries it has only when purge is set; otherwise it is
// reported as stalled and left untouched. Errors on a single message are
// recorded in the report and do not stop the pass.
func (s *ReconcileService) ReconcileOrphans(ctx context.Context, olderThan time.Duration, purge bool) (*ReconcileReport, error) {
	if olderThan < 0 {
		return nil, fmt.Errorf("%w: grace period must not be negative", domain.ErrInvalidInput)
	}
	pending, err := s.messages.ListPendingBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}

	report := &ReconcileReport{Finalized: []int64{}, Purged: []int64{}, Stalled: []int64{}}
	for _, m := range pending {
		log := s.log.With(zap.Int64("message_id", m.ID), zap.Int("intended", m.IntendedRecipients))

		n, err := s.messages.CountRecipients(ctx, m.ID)
		if err != nil {
			log.Error("count recipients failed", zap.Error(err))
			report.Failed = append(report.Failed, m.ID)
			metrics.ReconcileOutcomes.WithLabelValues("failed").Inc()
			continue
		}

		if n == m.IntendedRecipients {
			if err := s.messages.MarkDelivered(ctx, m.ID); err != nil {
				log.Error("finalize orphan failed", zap.Error(err))
				report.Failed = append(report.Failed, m.ID)
				metrics.ReconcileOutcomes.WithLabelValues("failed").Inc()
				continue
			}
			log.Info("finalized orphan message")
			report.Finalized = append(report.Finalized, m.ID)
			metrics.ReconcileOutcomes.WithLabelValues("finalized").Inc()
			continue
		}

		if !purge {
			log.Warn("partially delivered message needs operator attention", zap.Int("delivered", n))
			report.Stalled = append(report.Stalled, m.ID)
			metrics.ReconcileOutcomes.WithLabelValues("stalled").Inc()
			continue
		}
		if err := s.messages.Purge(ctx, m.ID); err != nil {
			log.Error("purge orphan failed", zap.Error(err))
			report.Failed = append(report.Failed, m.ID)
			metrics.ReconcileOutcomes.WithLabelValues("failed").Inc()
			continue
		}
		log.Info("purged partially delivered message", zap.Int("delivered", n))
		report.Purged = append(report.Purged, m.ID)
		metrics.ReconcileOutcomes.WithLabelValues("purged").Inc()
	}
	return report, nil
}

// Run finalizes orphans every interval until ctx is cancelled. It never
// purges; that takes an explicit ReconcileOrphans call.
func (s *ReconcileService) Run(ctx context.Context, interval, grace time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.ReconcileOrphans(ctx, grace, false)
			if err != nil {
				s.log.Error("reconcile pass failed", zap.Error(err))
				continue
			}
			if len(report.Finalized)+len(report.Stalled)+len(report.Failed) > 0 {
				s.log.Info("reconcile pass done",
					zap.Int("finalized", len(report.Finalized)),
					zap.Int("stalled", len(report.Stalled)),
					zap.Int("failed", len(report.Failed)))
			}
		}
	}
}
