// Package redis stores refresh credentials in Redis. Each subject owns one
// hash holding the credential, and each live fingerprint points back at its
// subject so rotation can find the owner by secret alone.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

// DefaultRetention keeps expired credentials around long enough to report
// them as expired rather than unknown.
const DefaultRetention = 24 * time.Hour

const upsertScript = `
local subject_key = KEYS[1]
local secret_key = KEYS[2]
local secret_prefix = ARGV[1]
local expire_at_ms = ARGV[8]

local old_hash = redis.call("HGET", subject_key, "secret_hash")
if old_hash then
  redis.call("DEL", secret_prefix .. old_hash)
end

local id = redis.call("HGET", subject_key, "id")
local created_at = redis.call("HGET", subject_key, "created_at")
if not id then
  id = ARGV[2]
  created_at = ARGV[6]
end

redis.call("HSET", subject_key,
  "id", id,
  "subject", ARGV[3],
  "secret_hash", ARGV[4],
  "expires_at", ARGV[5],
  "created_at", created_at,
  "updated_at", ARGV[7])
redis.call("SET", secret_key, ARGV[3])
redis.call("PEXPIREAT", subject_key, expire_at_ms)
redis.call("PEXPIREAT", secret_key, expire_at_ms)

return redis.call("HMGET", subject_key, "id", "subject", "secret_hash", "expires_at", "created_at", "updated_at")
`

var upsertLua = redis.NewScript(upsertScript)

// Status codes: 0 unknown, 1 expired (deleted), 2 rotated.
const rotateScript = `
local old_secret_key = KEYS[1]
local subject_prefix = ARGV[1]
local secret_prefix = ARGV[2]
local old_hash = ARGV[3]
local new_hash = ARGV[4]
local new_expires = ARGV[5]
local now_ms = tonumber(ARGV[6])
local expire_at_ms = ARGV[7]

local subject = redis.call("GET", old_secret_key)
if not subject then
  return {0}
end

local subject_key = subject_prefix .. subject
local current = redis.call("HGET", subject_key, "secret_hash")
if current ~= old_hash then
  redis.call("DEL", old_secret_key)
  return {0}
end

local expires = tonumber(redis.call("HGET", subject_key, "expires_at"))
if expires <= now_ms then
  redis.call("DEL", old_secret_key, subject_key)
  return {1}
end

redis.call("DEL", old_secret_key)
redis.call("HSET", subject_key,
  "secret_hash", new_hash,
  "expires_at", new_expires,
  "updated_at", ARGV[6])
redis.call("SET", secret_prefix .. new_hash, subject)
redis.call("PEXPIREAT", subject_key, expire_at_ms)
redis.call("PEXPIREAT", secret_prefix .. new_hash, expire_at_ms)

local row = redis.call("HMGET", subject_key, "id", "subject", "secret_hash", "expires_at", "created_at", "updated_at")
return {2, row[1], row[2], row[3], row[4], row[5], row[6]}
`

var rotateLua = redis.NewScript(rotateScript)

const deleteScript = `
local subject_key = KEYS[1]
local secret_prefix = ARGV[1]

local hash = redis.call("HGET", subject_key, "secret_hash")
if hash then
  redis.call("DEL", secret_prefix .. hash)
end
return redis.call("DEL", subject_key)
`

var deleteLua = redis.NewScript(deleteScript)

// RefreshCredentials implements store.RefreshCredentials on Redis.
type RefreshCredentials struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ store.RefreshCredentials = (*RefreshCredentials)(nil)

// NewRefreshCredentials namespaces keys under prefix. A retention of zero uses
// DefaultRetention.
func NewRefreshCredentials(client redis.UniversalClient, prefix string, retention time.Duration) *RefreshCredentials {
	if prefix == "" {
		prefix = "gk"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RefreshCredentials{redis: client, prefix: prefix, retention: retention}
}

func (r *RefreshCredentials) subjectPrefix() string { return r.prefix + ":rt:sub:" }
func (r *RefreshCredentials) secretPrefix() string  { return r.prefix + ":rt:sec:" }

func (r *RefreshCredentials) subjectKey(subject string) string { return r.subjectPrefix() + subject }
func (r *RefreshCredentials) secretKey(hash string) string     { return r.secretPrefix() + hash }

func (r *RefreshCredentials) expireAt(expiresAt time.Time) string {
	return ms(expiresAt.Add(r.retention))
}

func ms(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func (r *RefreshCredentials) UpsertRefreshCredential(ctx context.Context, c domain.RefreshCredential) (domain.RefreshCredential, error) {
	res, err := upsertLua.Run(ctx, r.redis,
		[]string{r.subjectKey(c.Subject), r.secretKey(c.SecretHash)},
		r.secretPrefix(), c.ID, c.Subject, c.SecretHash,
		ms(c.ExpiresAt), ms(c.CreatedAt), ms(c.UpdatedAt), r.expireAt(c.ExpiresAt),
	).Slice()
	if err != nil {
		return domain.RefreshCredential{}, fmt.Errorf("redis: upsert refresh credential: %w", err)
	}
	return parseRow(res)
}

func (r *RefreshCredentials) RotateRefreshCredential(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (domain.RefreshCredential, error) {
	res, err := rotateLua.Run(ctx, r.redis,
		[]string{r.secretKey(oldHash)},
		r.subjectPrefix(), r.secretPrefix(), oldHash, newHash,
		ms(expiresAt), ms(now), r.expireAt(expiresAt),
	).Slice()
	if err != nil {
		return domain.RefreshCredential{}, fmt.Errorf("redis: rotate refresh credential: %w", err)
	}
	if len(res) == 0 {
		return domain.RefreshCredential{}, errors.New("redis: rotate refresh credential: empty reply")
	}

	status, _ := res[0].(int64)
	switch status {
	case 0:
		return domain.RefreshCredential{}, store.ErrNotFound
	case 1:
		return domain.RefreshCredential{}, store.ErrExpired
	case 2:
		return parseRow(res[1:])
	}
	return domain.RefreshCredential{}, fmt.Errorf("redis: rotate refresh credential: status %d", status)
}

func (r *RefreshCredentials) GetRefreshCredentialBySubject(ctx context.Context, subject string) (domain.RefreshCredential, error) {
	res, err := r.redis.HMGet(ctx, r.subjectKey(subject),
		"id", "subject", "secret_hash", "expires_at", "created_at", "updated_at").Result()
	if err != nil {
		return domain.RefreshCredential{}, fmt.Errorf("redis: get refresh credential: %w", err)
	}
	return parseRow(res)
}

func (r *RefreshCredentials) DeleteRefreshCredentialBySubject(ctx context.Context, subject string) error {
	if err := deleteLua.Run(ctx, r.redis, []string{r.subjectKey(subject)}, r.secretPrefix()).Err(); err != nil {
		return fmt.Errorf("redis: delete refresh credential: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshCredentials is a no-op: Redis expires keys itself once
// the retention window has passed.
func (r *RefreshCredentials) DeleteExpiredRefreshCredentials(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping verifies the connection.
func (r *RefreshCredentials) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// parseRow decodes an HMGET-ordered reply. A nil id means no row.
func parseRow(vals []any) (domain.RefreshCredential, error) {
	if len(vals) < 6 || vals[0] == nil {
		return domain.RefreshCredential{}, store.ErrNotFound
	}

	str := func(i int) string {
		s, _ := vals[i].(string)
		return s
	}
	ts := func(i int) (time.Time, error) {
		n, err := strconv.ParseInt(str(i), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("redis: malformed timestamp %q", str(i))
		}
		return time.UnixMilli(n).UTC(), nil
	}

	c := domain.RefreshCredential{ID: str(0), Subject: str(1), SecretHash: str(2)}
	var err error
	if c.ExpiresAt, err = ts(3); err != nil {
		return domain.RefreshCredential{}, err
	}
	if c.CreatedAt, err = ts(4); err != nil {
		return domain.RefreshCredential{}, err
	}
	if c.UpdatedAt, err = ts(5); err != nil {
		return domain.RefreshCredential{}, err
	}
	return c, nil
}
