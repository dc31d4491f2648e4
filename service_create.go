package sessionguard

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/panelforge/sessionguard/internal"
	"github.com/panelforge/sessionguard/session"
)

// Create issues a new session for an authenticated user and returns its
// token. Client IP and user agent are read from ctx (WithClientIP,
// WithUserAgent) and bound to the record; rememberMe selects the long TTL.
//
// When the user is at the concurrent-session cap, the oldest session (by
// creation time) is evicted first. The cap is advisory: two near-simultaneous
// logins may transiently exceed it by one, which self-corrects on the next
// create.
func (s *Service) Create(ctx context.Context, userID int64, rememberMe bool) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrServiceNotReady
	}
	if userID <= 0 {
		return "", ErrUserRequired
	}

	if err := s.enforceSessionLimit(ctx, userID); err != nil {
		return "", err
	}

	token, err := internal.NewToken()
	if err != nil {
		return "", err
	}

	now := s.now()
	rec := &session.Record{
		Token:          token,
		UserID:         userID,
		CreatedAt:      now.Unix(),
		LastActivity:   now.Unix(),
		RotatedAt:      now.Unix(),
		IPAddress:      clientIPFromContext(ctx),
		UserAgentHash:  internal.HashUserAgent(userAgentFromContext(ctx)),
		CSRFToken:      uuid.NewString(),
		PrivilegeLevel: PrivilegeUser,
		RememberMe:     rememberMe,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.store.Save(storeCtx, rec, s.ttlFor(rememberMe))
	cancel()
	if err != nil {
		return "", s.mapStoreErr(err)
	}

	s.metricInc(MetricSessionCreated)
	s.emitAudit(ctx, auditEventSessionCreated, true, userID, token, nil, func() map[string]string {
		return map[string]string{
			"remember_me": strconv.FormatBool(rememberMe),
		}
	})

	return token, nil
}

// enforceSessionLimit evicts the oldest live session when a create would
// exceed the per-user cap. Stale index entries don't count: only tokens
// whose record still resolves are candidates.
func (s *Service) enforceSessionLimit(ctx context.Context, userID int64) error {
	max := s.config.Hardening.MaxSessionsPerUser
	if max <= 0 {
		return nil
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	tokens, err := s.store.Members(storeCtx, userID)
	if err != nil {
		return s.mapStoreErr(err)
	}
	if len(tokens) < max {
		return nil
	}

	records, err := s.store.GetMany(storeCtx, tokens)
	if err != nil {
		return s.mapStoreErr(err)
	}
	if len(records) < max {
		return nil
	}

	oldest := records[0]
	for _, rec := range records[1:] {
		if rec.CreatedAt < oldest.CreatedAt {
			oldest = rec
		}
	}

	if err := s.store.Delete(storeCtx, oldest.Token, userID); err != nil {
		return s.mapStoreErr(err)
	}

	s.metricInc(MetricSessionEvicted)
	s.emitAudit(ctx, auditEventSessionEvicted, true, userID, oldest.Token, nil, func() map[string]string {
		return map[string]string{
			"reason": "session_limit",
		}
	})
	s.logger.Debug("evicted oldest session at concurrency limit",
		zap.Int64("user_id", userID),
		zap.String("token_fragment", internal.Fragment(oldest.Token)),
	)

	return nil
}
