package sessionguard

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/panelforge/sessionguard/internal"
	"github.com/panelforge/sessionguard/session"
)

// Rotate replaces the session's token on demand, preserving its identity:
// user, creation time, privilege level, remember-me, and telemetry all carry
// over. The new record is written before the old one is removed, so a crash
// mid-rotation leaves at most one extra live token, never zero.
func (s *Service) Rotate(ctx context.Context, token string) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrServiceNotReady
	}
	if !internal.ValidFormat(token) {
		return "", ErrTokenMalformed
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.Get(storeCtx, token)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", s.mapStoreErr(err)
	}

	return s.rotateRecord(ctx, storeCtx, rec)
}

// rotateRecord is the shared rotation step for Rotate, Validate (due
// rotation), and Escalate. The caller owns audit/metric handling of the
// failure path; success is recorded here.
func (s *Service) rotateRecord(ctx, storeCtx context.Context, rec *session.Record) (string, error) {
	newToken, err := internal.NewToken()
	if err != nil {
		return "", err
	}

	oldToken := rec.Token
	now := s.now()

	next := *rec
	next.Token = newToken
	next.RotatedAt = now.Unix()
	next.LastActivity = now.Unix()
	if next.IPAddress == "" {
		next.IPAddress = clientIPFromContext(ctx)
	}
	if next.UserAgentHash == "" {
		if ua := userAgentFromContext(ctx); ua != "" {
			next.UserAgentHash = internal.HashUserAgent(ua)
		}
	}

	if err := s.store.Save(storeCtx, &next, s.ttlFor(next.RememberMe)); err != nil {
		return "", s.mapStoreErr(err)
	}

	if err := s.store.Delete(storeCtx, oldToken, rec.UserID); err != nil {
		// The new token is already live; the orphaned old record ages out
		// on its TTL.
		s.logger.Warn("failed to remove superseded session record",
			zap.Int64("user_id", rec.UserID),
			zap.String("token_fragment", internal.Fragment(oldToken)),
			zap.Error(err),
		)
	}

	s.metricInc(MetricSessionRotated)
	s.emitAudit(ctx, auditEventSessionRotated, true, rec.UserID, newToken, nil, func() map[string]string {
		return map[string]string{
			"previous_fragment": internal.Fragment(oldToken),
		}
	})

	return newToken, nil
}
