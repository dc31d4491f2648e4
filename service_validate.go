package sessionguard

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/panelforge/sessionguard/internal"
	"github.com/panelforge/sessionguard/session"
)

// Validate runs the per-request session check: token format, record fetch,
// idle expiry, user-agent integrity, IP drift, telemetry refresh, and due
// rotation. It returns an explicit [Snapshot] on acceptance.
//
// The user-agent and IP checks are deliberately asymmetric: a user-agent
// mismatch destroys the session and raises hijack_suspected; an IP change
// is flagged, recorded, and tolerated, because legitimate clients roam
// between networks.
//
// Store outages fail closed with ErrStoreUnavailable. Telemetry updates are
// fire-and-forget and can never fail the request.
func (s *Service) Validate(ctx context.Context, token string) (*Snapshot, error) {
	if s == nil || s.store == nil {
		return nil, ErrServiceNotReady
	}

	start := s.now()
	defer func() {
		s.metrics.Observe(MetricValidateLatency, s.now().Sub(start))
	}()

	if !internal.ValidFormat(token) {
		s.metricInc(MetricValidateRejected)
		return nil, ErrTokenMalformed
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.Get(storeCtx, token)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.metricInc(MetricValidateRejected)
			return nil, ErrSessionNotFound
		}
		if errors.Is(err, session.ErrRecordCorrupt) {
			// Undecodable record: destroy it and report a plain miss.
			if delErr := s.store.Delete(storeCtx, token, 0); delErr != nil {
				s.logger.Warn("failed to delete corrupt session record", zap.Error(delErr))
			}
			s.metricInc(MetricValidateRejected)
			return nil, ErrSessionNotFound
		}
		s.metricInc(MetricValidateRejected)
		return nil, s.mapStoreErr(err)
	}

	now := s.now()
	idle := s.ttlFor(rec.RememberMe)
	if rec.LastActivity > 0 && now.Unix()-rec.LastActivity > int64(idle.Seconds()) {
		if err := s.store.Delete(storeCtx, token, rec.UserID); err != nil {
			s.metricInc(MetricValidateRejected)
			return nil, s.mapStoreErr(err)
		}
		s.metricInc(MetricSessionExpired)
		s.metricInc(MetricValidateRejected)
		s.emitAudit(ctx, auditEventSessionDestroyed, true, rec.UserID, token, ErrSessionExpired, func() map[string]string {
			return map[string]string{
				"reason": "idle_expired",
			}
		})
		return nil, ErrSessionExpired
	}

	presentedUA := internal.HashUserAgent(userAgentFromContext(ctx))
	if rec.UserAgentHash != "" && presentedUA != rec.UserAgentHash {
		if err := s.store.Delete(storeCtx, token, rec.UserID); err != nil {
			s.metricInc(MetricValidateRejected)
			return nil, s.mapStoreErr(err)
		}
		s.metricInc(MetricHijackSuspected)
		s.metricInc(MetricValidateRejected)
		s.emitAudit(ctx, auditEventHijackSuspected, false, rec.UserID, token, ErrHijackSuspected, func() map[string]string {
			return map[string]string{
				"reason": "user_agent_mismatch",
			}
		})
		return nil, ErrHijackSuspected
	}

	if ip := clientIPFromContext(ctx); ip != "" && rec.IPAddress != "" && ip != rec.IPAddress {
		s.recordIPChange(ctx, storeCtx, rec, ip)
	}

	s.refreshActivity(storeCtx, rec, now.Unix())

	snapshot := &Snapshot{
		Token:          token,
		UserID:         rec.UserID,
		CSRFToken:      rec.CSRFToken,
		PrivilegeLevel: rec.PrivilegeLevel,
		CreatedAt:      rec.CreatedAt,
		LastActivity:   now.Unix(),
		RememberMe:     rec.RememberMe,
		RequestCount:   rec.Telemetry.RequestCount + 1,
	}

	rotatedAt := rec.RotatedAt
	if rotatedAt == 0 {
		rotatedAt = rec.CreatedAt
	}
	if now.Unix()-rotatedAt > int64(s.config.Session.RotationInterval.Seconds()) {
		newToken, rotErr := s.rotateRecord(ctx, storeCtx, rec)
		if rotErr != nil {
			// The old session stays valid; rotation retries on the next
			// validation once the store recovers.
			s.metricInc(MetricRotationFailed)
			s.logger.Warn("scheduled rotation failed",
				zap.Int64("user_id", rec.UserID),
				zap.String("token_fragment", internal.Fragment(token)),
				zap.Error(rotErr),
			)
		} else {
			snapshot.RotatedToken = newToken
		}
	}

	s.metricInc(MetricValidateAccepted)
	return snapshot, nil
}

// recordIPChange updates the stored IP and flags the change. Both writes are
// best-effort: an IP bookkeeping failure never rejects the request.
func (s *Service) recordIPChange(ctx, storeCtx context.Context, rec *session.Record, newIP string) {
	previous := rec.IPAddress
	rec.IPAddress = newIP
	rec.Flags.IPChanged = true

	ttl := s.ttlFor(rec.RememberMe)
	if _, err := s.store.Touch(storeCtx, rec.Token, rec.UserID, "ip_address", newIP, ttl); err != nil {
		s.logger.Warn("failed to persist session ip change", zap.Error(err))
	}
	if flags, err := json.Marshal(rec.Flags); err == nil {
		if _, err := s.store.Touch(storeCtx, rec.Token, rec.UserID, "security_flags", string(flags), ttl); err != nil {
			s.logger.Warn("failed to persist session security flags", zap.Error(err))
		}
	}

	s.metricInc(MetricIPChanged)
	s.emitAudit(ctx, auditEventIPAddressChanged, true, rec.UserID, rec.Token, nil, func() map[string]string {
		return map[string]string{
			"previous_ip": previous,
			"new_ip":      newIP,
		}
	})
}

// refreshActivity bumps last_activity and the telemetry counter. Fail open:
// a lost counter update is logged and dropped, never raised.
func (s *Service) refreshActivity(storeCtx context.Context, rec *session.Record, nowUnix int64) {
	ttl := s.ttlFor(rec.RememberMe)
	if _, err := s.store.Touch(storeCtx, rec.Token, rec.UserID, "last_activity", strconv.FormatInt(nowUnix, 10), ttl); err != nil {
		s.metricInc(MetricTelemetryDropped)
		s.logger.Warn("failed to refresh session activity", zap.Error(err))
		return
	}
	if err := s.store.IncrRequestCount(storeCtx, rec.Token); err != nil {
		s.metricInc(MetricTelemetryDropped)
		s.logger.Warn("failed to bump session request count", zap.Error(err))
	}
}
