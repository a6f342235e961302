package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the default Store implementation, backed by go-redis's
// UniversalClient so the same code serves a single node, a sentinel-backed
// master, or a cluster (the KV backend may be
// clustered"), matching the redis.ClusterClient usage shape grounded in the
// connectify-v2 reference.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an already-constructed client. Construction (single
// vs. cluster) is cmd/node's concern, driven by config.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if err == redis.Nil {
		return ErrNotFound
	}
	if msg := err.Error(); len(msg) >= 9 && msg[:9] == "WRONGTYPE" {
		return fmt.Errorf("%w: %s", ErrTypeMismatch, err)
	}
	if _, ok := err.(interface{ Timeout() bool }); ok {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, err)
	}
	return err
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", classify(err)
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return classify(r.client.Set(ctx, key, value, ttl).Err())
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return classify(r.client.Del(ctx, keys...).Err())
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, classify(err)
	}
	return n > 0, nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return classify(r.client.Expire(ctx, key, ttl).Err())
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", classify(err)
	}
	return v, nil
}

func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (r *RedisStore) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	vals, err := r.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, classify(err)
	}
	out := make(map[string]string, len(fields))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[fields[i]] = s
	}
	return out, nil
}

func (r *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return classify(r.client.HSet(ctx, key, args...).Err())
}

func (r *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return classify(r.client.HDel(ctx, key, fields...).Err())
}

func (r *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return classify(r.client.SAdd(ctx, key, args...).Err())
}

func (r *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return classify(r.client.SRem(ctx, key, args...).Err())
}

func (r *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (r *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, classify(err)
	}
	return ok, nil
}

func (r *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return classify(r.client.LPush(ctx, key, args...).Err())
}

func (r *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return classify(r.client.LTrim(ctx, key, start, stop).Err())
}

func (r *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, classify(err)
	}
	return v, nil
}

// maxWinsScript sets hash field ARGV[1] on KEYS[1] to ARGV[2] only if it is
// numerically greater than the field's current value (or the field is
// absent), refreshes the key's TTL to ARGV[3] seconds on success, and
// returns 1 if the update applied, 0 otherwise.
var maxWinsScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current and tonumber(current) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// MaxWinsHashUpdate evaluates maxWinsScript via EvalSha, falling back to a
// full Eval on a NOSCRIPT miss (e.g. after a Redis restart flushed the
// script cache).
func (r *RedisStore) MaxWinsHashUpdate(ctx context.Context, key, field string, candidate int64, ttl time.Duration) (bool, error) {
	res, err := maxWinsScript.Run(ctx, r.client, []string{key}, field, candidate, int64(ttl.Seconds())).Int()
	if err != nil {
		if isNoScript(err) {
			res, err = maxWinsScript.Eval(ctx, r.client, []string{key}, field, candidate, int64(ttl.Seconds())).Int()
		}
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrScriptError, err)
		}
	}
	return res == 1, nil
}

func isNoScript(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "NOSCRIPT"
}

func (r *RedisStore) Pipeline(ctx context.Context, fn func(p Pipeline) error) error {
	pipe := r.client.TxPipeline()
	rp := &redisPipeline{ctx: ctx, pipe: pipe}
	if err := fn(rp); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return classify(err)
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

type redisPipeline struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (p *redisPipeline) Set(key, value string, ttl time.Duration) {
	p.pipe.Set(p.ctx, key, value, ttl)
}

func (p *redisPipeline) HSet(key string, fields map[string]string) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if len(args) > 0 {
		p.pipe.HSet(p.ctx, key, args...)
	}
}

func (p *redisPipeline) SAdd(key string, members ...string) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if len(args) > 0 {
		p.pipe.SAdd(p.ctx, key, args...)
	}
}

func (p *redisPipeline) Del(keys ...string) {
	if len(keys) > 0 {
		p.pipe.Del(p.ctx, keys...)
	}
}

func (p *redisPipeline) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(p.ctx, key, ttl)
}
