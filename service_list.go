package sessionguard

import (
	"context"
	"sort"

	"github.com/panelforge/sessionguard/internal"
)

// ListSessions returns the user's live sessions, oldest first, for a
// "manage devices" view. currentToken, when non-empty, marks the caller's
// own session via IsCurrent. Only fragments of tokens are exposed.
func (s *Service) ListSessions(ctx context.Context, userID int64, currentToken string) ([]SessionInfo, error) {
	if s == nil || s.store == nil {
		return nil, ErrServiceNotReady
	}
	if userID <= 0 {
		return nil, ErrUserRequired
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	tokens, err := s.store.Members(storeCtx, userID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	records, err := s.store.GetMany(storeCtx, tokens)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			TokenFragment: internal.Fragment(rec.Token),
			CreatedAt:     rec.CreatedAt,
			LastActivity:  rec.LastActivity,
			IPAddress:     rec.IPAddress,
			UserAgentHash: rec.UserAgentHash,
			RememberMe:    rec.RememberMe,
			IsCurrent:     currentToken != "" && rec.Token == currentToken,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt < infos[j].CreatedAt
	})

	return infos, nil
}
