package sessionguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/panelforge/sessionguard/internal"
)

// Escalate raises the session's privilege level and forces a rotation so the
// pre-escalation token never carries elevated rights. The privilege write
// lands first; if the subsequent rotation fails, the caller gets
// ErrRotationIncomplete and must treat the escalation as failed and destroy
// the session rather than retry on the old token.
func (s *Service) Escalate(ctx context.Context, token, privilegeLevel string) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrServiceNotReady
	}
	if !internal.ValidFormat(token) {
		return "", ErrTokenMalformed
	}
	if privilegeLevel == "" {
		return "", errors.New("privilege level required")
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

	previous := rec.PrivilegeLevel
	ok, err := s.store.Touch(storeCtx, token, rec.UserID, "privilege_level", privilegeLevel, s.ttlFor(rec.RememberMe))
	if err != nil {
		return "", s.mapStoreErr(err)
	}
	if !ok {
		return "", ErrSessionNotFound
	}
	rec.PrivilegeLevel = privilegeLevel

	newToken, err := s.rotateRecord(ctx, storeCtx, rec)
	if err != nil {
		s.metricInc(MetricRotationFailed)
		s.emitAudit(ctx, auditEventPrivilegeEscalated, false, rec.UserID, token, ErrRotationIncomplete, func() map[string]string {
			return map[string]string{
				"previous_level":  previous,
				"requested_level": privilegeLevel,
			}
		})
		return "", fmt.Errorf("%w: %v", ErrRotationIncomplete, err)
	}

	s.metricInc(MetricPrivilegeEscalated)
	s.emitAudit(ctx, auditEventPrivilegeEscalated, true, rec.UserID, newToken, nil, func() map[string]string {
		return map[string]string{
			"previous_level": previous,
			"new_level":      privilegeLevel,
		}
	})

	return newToken, nil
}
