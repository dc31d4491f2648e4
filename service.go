package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/panelforge/sessionguard/internal"
	"github.com/panelforge/sessionguard/session"
)

// Service is the session security façade: it issues, validates, rotates,
// and revokes session tokens against the shared store. One Service is
// constructed per process; all per-session mutable state lives in the
// store, so any number of Service instances stay consistent.
type Service struct {
	config  Config
	store   *session.Store
	audit   *auditDispatcher
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Close drains and stops the audit dispatcher.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

// AuditDropped reports audit events discarded under backpressure.
func (s *Service) AuditDropped() uint64 {
	if s == nil || s.audit == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// Ping probes store availability and reports the round-trip latency.
func (s *Service) Ping(ctx context.Context) (time.Duration, error) {
	if s == nil || s.store == nil {
		return 0, ErrServiceNotReady
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	d, err := s.store.Ping(ctx)
	if err != nil {
		return d, s.mapStoreErr(err)
	}
	return d, nil
}

func (s *Service) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

// storeCtx applies the configured per-call store timeout.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.config.Session.StoreTimeout)
}

// mapStoreErr translates store sentinels into the public taxonomy and
// counts outages. redis.Nil never reaches this path; callers branch on it
// first.
func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, session.ErrStoreUnavailable) {
		s.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// ttlFor selects the store TTL and idle window for a record. Remember-me
// swaps the short idle window for the long-lived TTL; both the store expiry
// and the validator check use the same duration so they cannot disagree.
func (s *Service) ttlFor(rememberMe bool) time.Duration {
	if rememberMe {
		return s.config.Session.RememberMeTTL
	}
	return s.config.Session.IdleTimeout
}

func (s *Service) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	token string,
	cause error,
	metadata func() map[string]string,
) {
	if s == nil || s.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:     s.now(),
		EventType:     eventType,
		UserID:        userID,
		TokenFragment: internal.Fragment(token),
		IP:            clientIPFromContext(ctx),
		Success:       success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	s.audit.Emit(ctx, event)
}
