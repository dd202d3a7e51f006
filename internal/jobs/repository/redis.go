package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hivelearn/relay/internal/jobs/domain"
)

// Redis is the production Store. Job records live in hashes keyed by ID;
// each kind has a waiting sorted set (score = eligibility time), an active
// sorted set (score = lease expiry) and bounded completed/failed lists for
// retention. Every multi-step transition runs as a Lua script so that
// concurrent producers, workers and the sweeper never observe or produce a
// half-applied transition.
type Redis struct {
	rc *redis.Client

	retainCompleted int
	retainFailed    int
}

var _ domain.Store = (*Redis)(nil)

func NewRedis(rc *redis.Client, retainCompleted, retainFailed int) *Redis {
	return &Redis{rc: rc, retainCompleted: retainCompleted, retainFailed: retainFailed}
}

const jobPrefix = "relay:job:"

func jobKey(id string) string           { return jobPrefix + id }
func waitingKey(k domain.Kind) string   { return "relay:q:" + string(k) + ":waiting" }
func activeKey(k domain.Kind) string    { return "relay:q:" + string(k) + ":active" }
func completedKey(k domain.Kind) string { return "relay:q:" + string(k) + ":completed" }
func failedKey(k domain.Kind) string    { return "relay:q:" + string(k) + ":failed" }

// Claims the earliest eligible waiting job and moves it under an active
// lease. Returning the ID from the same script that removes it from the
// waiting set is what guarantees single ownership. The state guard skips
// entries whose record already left the waiting state (a late ack may
// complete a job after the sweeper put it back in the waiting set).
var luaClaim = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 10)
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  if redis.call('HGET', ARGV[3]..id, 'state') == 'waiting' then
    redis.call('ZADD', KEYS[2], ARGV[2], id)
    redis.call('HSET', ARGV[3]..id, 'state', 'active', 'last_attempt_at', ARGV[1], 'lease_expires_at', ARGV[2])
    return id
  end
end
return false
`)

// Removes the job from the waiting set as well as the active set: when the
// sweeper requeued the job before a slow worker's ack arrived, the ack must
// also retract the waiting entry or the job would be delivered again.
var luaAck = redis.NewScript(`
local key = ARGV[2]..ARGV[1]
local state = redis.call('HGET', key, 'state')
if not state then return -1 end
if state == 'completed' then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HSET', key, 'state', 'completed', 'lease_expires_at', 0, 'error', '')
redis.call('LPUSH', KEYS[2], ARGV[1])
for i = 1, redis.call('LLEN', KEYS[2]) - tonumber(ARGV[3]) do
  local old = redis.call('RPOP', KEYS[2])
  if old then redis.call('DEL', ARGV[2]..old) end
end
return 1
`)

var luaRetryOrFail = redis.NewScript(`
local key = ARGV[2]..ARGV[1]
if redis.call('EXISTS', key) == 0 then return -1 end
redis.call('ZREM', KEYS[1], ARGV[1])
local attempts = redis.call('HINCRBY', key, 'attempts', 1)
local max = tonumber(redis.call('HGET', key, 'max_attempts'))
redis.call('HSET', key, 'error', ARGV[3], 'last_attempt_at', ARGV[4], 'lease_expires_at', 0)
if attempts < max then
  local due = tonumber(ARGV[4]) + tonumber(ARGV[5]) * 2 ^ (attempts - 1)
  redis.call('HSET', key, 'state', 'waiting', 'next_attempt_at', due)
  redis.call('ZADD', KEYS[2], due, ARGV[1])
  return attempts
end
redis.call('HSET', key, 'state', 'failed')
redis.call('LPUSH', KEYS[3], ARGV[1])
for i = 1, redis.call('LLEN', KEYS[3]) - tonumber(ARGV[6]) do
  local old = redis.call('RPOP', KEYS[3])
  if old then redis.call('DEL', ARGV[2]..old) end
end
return attempts
`)

var luaRequeueExpired = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HSET', ARGV[2]..id, 'state', 'waiting', 'next_attempt_at', ARGV[1], 'lease_expires_at', 0)
  redis.call('ZADD', KEYS[2], ARGV[1], id)
end
return #ids
`)

var luaReplay = redis.NewScript(`
local key = ARGV[2]..ARGV[1]
local state = redis.call('HGET', key, 'state')
if not state then return -1 end
if state ~= 'failed' then return 0 end
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('HSET', key, 'state', 'waiting', 'attempts', 0, 'error', '', 'next_attempt_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

func (s *Redis) Enqueue(ctx context.Context, job *domain.Job) error {
	id := job.ID.String()
	pipe := s.rc.TxPipeline()
	pipe.HSet(ctx, jobKey(id), jobToMap(job))
	pipe.ZAdd(ctx, waitingKey(job.Kind), redis.Z{Score: float64(ms(job.NextAttemptAt)), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("enqueue", err)
	}
	return nil
}

func (s *Redis) ClaimNext(ctx context.Context, kind domain.Kind, lease time.Duration) (*domain.Job, error) {
	now := time.Now()
	res, err := luaClaim.Run(ctx, s.rc,
		[]string{waitingKey(kind), activeKey(kind)},
		ms(now), ms(now.Add(lease)), jobPrefix,
	).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("claim", err)
	}
	id, ok := res.(string)
	if !ok || id == "" {
		return nil, nil
	}
	return s.load(ctx, id)
}

func (s *Redis) Ack(ctx context.Context, kind domain.Kind, id uuid.UUID) error {
	res, err := luaAck.Run(ctx, s.rc,
		[]string{activeKey(kind), completedKey(kind), waitingKey(kind)},
		id.String(), jobPrefix, s.retainCompleted,
	).Int()
	if err != nil {
		return storeErr("ack", err)
	}
	if res == -1 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Redis) RetryOrFail(ctx context.Context, kind domain.Kind, id uuid.UUID, cause string, base time.Duration) (*domain.Job, error) {
	res, err := luaRetryOrFail.Run(ctx, s.rc,
		[]string{activeKey(kind), waitingKey(kind), failedKey(kind)},
		id.String(), jobPrefix, cause, ms(time.Now()), base.Milliseconds(), s.retainFailed,
	).Int()
	if err != nil {
		return nil, storeErr("retry", err)
	}
	if res == -1 {
		return nil, domain.ErrJobNotFound
	}
	return s.load(ctx, id.String())
}

func (s *Redis) RequeueExpired(ctx context.Context, kind domain.Kind) (int, error) {
	n, err := luaRequeueExpired.Run(ctx, s.rc,
		[]string{activeKey(kind), waitingKey(kind)},
		ms(time.Now()), jobPrefix,
	).Int()
	if err != nil {
		return 0, storeErr("requeue expired", err)
	}
	return n, nil
}

func (s *Redis) Replay(ctx context.Context, kind domain.Kind, id uuid.UUID) error {
	res, err := luaReplay.Run(ctx, s.rc,
		[]string{failedKey(kind), waitingKey(kind)},
		id.String(), jobPrefix, ms(time.Now()),
	).Int()
	if err != nil {
		return storeErr("replay", err)
	}
	switch res {
	case -1:
		return domain.ErrJobNotFound
	case 0:
		return domain.ErrJobNotFailed
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.load(ctx, id.String())
}

func (s *Redis) Stats(ctx context.Context, kind domain.Kind) (domain.Stats, error) {
	pipe := s.rc.Pipeline()
	waiting := pipe.ZCard(ctx, waitingKey(kind))
	active := pipe.ZCard(ctx, activeKey(kind))
	completed := pipe.LLen(ctx, completedKey(kind))
	failed := pipe.LLen(ctx, failedKey(kind))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Stats{}, storeErr("stats", err)
	}
	return domain.Stats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

func (s *Redis) load(ctx context.Context, id string) (*domain.Job, error) {
	fields, err := s.rc.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, storeErr("get", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrJobNotFound
	}
	return jobFromMap(fields)
}

// Hash timestamps are unix milliseconds; 0 means unset.

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMS(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func jobToMap(j *domain.Job) map[string]any {
	return map[string]any{
		"id":               j.ID.String(),
		"kind":             string(j.Kind),
		"tenant_id":        j.TenantID.String(),
		"payload":          string(j.Payload),
		"attempts":         j.Attempts,
		"max_attempts":     j.MaxAttempts,
		"state":            string(j.State),
		"error":            j.Error,
		"created_at":       ms(j.CreatedAt),
		"last_attempt_at":  ms(j.LastAttemptAt),
		"next_attempt_at":  ms(j.NextAttemptAt),
		"lease_expires_at": ms(j.LeaseExpiresAt),
	}
}

func jobFromMap(fields map[string]string) (*domain.Job, error) {
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt job record: %w", err)
	}
	tenantID, err := uuid.Parse(fields["tenant_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt job record: %w", err)
	}
	j := &domain.Job{
		ID:       id,
		Kind:     domain.Kind(fields["kind"]),
		TenantID: tenantID,
		Payload:  json.RawMessage(fields["payload"]),
		State:    domain.State(fields["state"]),
		Error:    fields["error"],
	}
	j.Attempts, _ = strconv.Atoi(fields["attempts"])
	j.MaxAttempts, _ = strconv.Atoi(fields["max_attempts"])
	j.CreatedAt = fromMS(parseMS(fields["created_at"]))
	j.LastAttemptAt = fromMS(parseMS(fields["last_attempt_at"]))
	j.NextAttemptAt = fromMS(parseMS(fields["next_attempt_at"]))
	j.LeaseExpiresAt = fromMS(parseMS(fields["lease_expires_at"]))
	return j, nil
}

// parseMS tolerates the float formatting Lua uses when it writes scores.
func parseMS(s string) int64 {
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
