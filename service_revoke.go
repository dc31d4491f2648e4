package sessionguard

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/panelforge/sessionguard/internal"
)

// Destroy removes a session. Idempotent: a malformed or already-absent token
// is a successful no-op, so logout handlers never surface an error for a
// token that is simply gone.
func (s *Service) Destroy(ctx context.Context, token string) error {
	if s == nil || s.store == nil {
		return ErrServiceNotReady
	}
	if !internal.ValidFormat(token) {
		return nil
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.Get(storeCtx, token)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return s.mapStoreErr(err)
	}

	if err := s.store.Delete(storeCtx, token, rec.UserID); err != nil {
		return s.mapStoreErr(err)
	}

	s.metricInc(MetricSessionDestroyed)
	s.emitAudit(ctx, auditEventSessionDestroyed, true, rec.UserID, token, nil, func() map[string]string {
		return map[string]string{
			"reason": "logout",
		}
	})

	return nil
}

// RevokeAll removes every session for a user, optionally sparing one token
// (pass the caller's own session as exceptToken during a password change).
// It returns the number of records actually removed; stale index entries
// whose record already expired don't count.
func (s *Service) RevokeAll(ctx context.Context, userID int64, exceptToken string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrServiceNotReady
	}
	if userID <= 0 {
		return 0, ErrUserRequired
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	tokens, err := s.store.Members(storeCtx, userID)
	if err != nil {
		return 0, s.mapStoreErr(err)
	}

	records, err := s.store.GetMany(storeCtx, tokens)
	if err != nil {
		return 0, s.mapStoreErr(err)
	}

	revoked := 0
	for _, rec := range records {
		if exceptToken != "" && rec.Token == exceptToken {
			continue
		}
		if err := s.store.Delete(storeCtx, rec.Token, userID); err != nil {
			return revoked, s.mapStoreErr(err)
		}
		revoked++
	}

	s.metricInc(MetricSessionsRevoked)
	s.emitAudit(ctx, auditEventSessionsRevoked, true, userID, exceptToken, nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.Itoa(revoked),
		}
	})

	return revoked, nil
}
