package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when Redis cannot be reached. Callers must
// treat it as distinct from a redis.Nil miss: an outage fails closed, a miss
// is a normal negative result.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrRecordCorrupt is returned when a stored session hash cannot be decoded.
var ErrRecordCorrupt = errors.New("session record corrupt")

// touchScript updates one field and refreshes both TTLs, but only while the
// record still exists. Touching an expired or deleted session must not
// resurrect it as a keyless hash.
const touchScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
redis.call("PEXPIRE", KEYS[2], ARGV[3])
return 1
`

var touchLua = redis.NewScript(touchScript)

// incrRequestCountScript bumps the telemetry counter only for live records.
const incrRequestCountScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
`

var incrRequestCountLua = redis.NewScript(incrRequestCountScript)

// deleteScript removes the record and its index membership together.
// Idempotent: deleting an absent token is a no-op success.
const deleteScript = `
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteLua = redis.NewScript(deleteScript)

// Store is the Redis adapter holding per-session records and the per-user
// index of live tokens. Records and index entries are written and removed
// together; brief index staleness self-heals through TTL and is treated as
// "absent" wherever observed.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix namespaces every key.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) key(token string) string {
	return s.prefix + ":session:" + token
}

func (s *Store) userKey(userID int64) string {
	return s.prefix + ":user_sessions:" + strconv.FormatInt(userID, 10)
}

// Save persists a [Record] with the given TTL and indexes its token under
// the owning user. The index set shares the TTL of its freshest member.
//
//	Performance: 1 MULTI/EXEC round trip (HSET + 2x PEXPIRE + SADD).
func (s *Store) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	key := s.key(rec.Token)
	userKey := s.userKey(rec.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
		pipe.SAdd(ctx, userKey, rec.Token)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Get retrieves a session record by token. Absence (never existed or
// expired) is reported as redis.Nil, not as an error condition of its own.
//
//	Performance: 1 Redis HGETALL.
func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}

	return decodeRecord(token, fields)
}

// Touch updates a single field on a live record and refreshes the TTL of
// both the record and the user index. Returns false when the record is gone.
func (s *Store) Touch(ctx context.Context, token string, userID int64, field, value string, ttl time.Duration) (bool, error) {
	res, err := touchLua.Run(
		ctx,
		s.redis,
		[]string{s.key(token), s.userKey(userID)},
		field,
		value,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

// IncrRequestCount bumps the telemetry request counter. Callers treat this
// as fire-and-forget; a failure is logged, never propagated to the request.
func (s *Store) IncrRequestCount(ctx context.Context, token string) error {
	err := incrRequestCountLua.Run(ctx, s.redis, []string{s.key(token)}, fieldRequestCount).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a record and its index membership. Idempotent.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Delete(ctx context.Context, token string, userID int64) error {
	err := deleteLua.Run(ctx, s.redis, []string{s.key(token), s.userKey(userID)}, token).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Members returns the tokens currently indexed for a user. Entries may be
// stale: a Get miss for a listed token means "expired, skip", and callers
// must not treat it as an error.
func (s *Store) Members(ctx context.Context, userID int64) ([]string, error) {
	tokens, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tokens, nil
}

// Count returns the number of indexed tokens for a user, stale entries
// included. Good enough for the advisory concurrency limit.
func (s *Store) Count(ctx context.Context, userID int64) (int, error) {
	n, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// GetMany fetches multiple records in one pipeline, silently skipping
// tokens whose record is gone.
func (s *Store) GetMany(ctx context.Context, tokens []string) ([]*Record, error) {
	if len(tokens) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, s.key(token))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*Record, 0, len(tokens))
	for i, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			continue
		}

		rec, decErr := decodeRecord(tokens[i], fields)
		if decErr != nil {
			return nil, decErr
		}
		records = append(records, rec)
	}

	return records, nil
}

// Ping returns a point-in-time store availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
