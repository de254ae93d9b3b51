// redis.go -- go-redis backend.
//
// Each user is a hash holding a JSON profile plus first_login, last_login and
// login_count. A sorted set scored by last_login gives the admin listing order,
// and a capped list per user keeps recent login events.
// Every key shares the {herald} hash tag so the upsert script stays on one slot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisLoginHistory caps the per-user login event list.
const redisLoginHistory = 100

const redisUsersByLastLogin = "{herald}:users:by_last_login"

func redisUserKey(id string) string   { return "{herald}:user:" + id }
func redisLoginsKey(id string) string { return "{herald}:logins:" + id }

// upsertScript runs the whole login mutation server-side, so concurrent logins for
// one id are serialized by Redis and HINCRBY never loses an increment.
// Timestamps stay strings in the hash; tonumber is only used for comparison.
//
// KEYS: user hash, by_last_login zset, logins list
// ARGV: id, profile JSON, login unix micro, event JSON, history cap
var upsertScript = redis.NewScript(`
local first = redis.call('HGET', KEYS[1], 'first_login')
if not first then
	first = ARGV[3]
	redis.call('HSET', KEYS[1], 'first_login', first)
end
local last = redis.call('HGET', KEYS[1], 'last_login')
if (not last) or tonumber(ARGV[3]) > tonumber(last) then
	last = ARGV[3]
	redis.call('HSET', KEYS[1], 'last_login', last)
	redis.call('ZADD', KEYS[2], last, ARGV[1])
end
redis.call('HSET', KEYS[1], 'profile', ARGV[2])
local count = redis.call('HINCRBY', KEYS[1], 'login_count', 1)
redis.call('LPUSH', KEYS[3], ARGV[4])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[5]) - 1)
return {count, first, last}
`)

// redisProfile is the overwrite-on-every-login part of a user hash.
type redisProfile struct {
	Username      *string `json:"username"`
	Discriminator *string `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	Email         *string `json:"email"`

	AccessToken    string  `json:"access_token"`
	RefreshToken   *string `json:"refresh_token"`
	TokenExpiresIn int64   `json:"token_expires_in"`
	TokenType      string  `json:"token_type"`
	Scope          string  `json:"scope"`

	LoginIP *string `json:"login_ip"`
}

// RedisStore is a user store backed by Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and returns a ready-to-use store.
// It pings Redis to verify connectivity before returning.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &RedisStore{rdb}, nil
}

// Close shuts down the Redis client and releases all resources.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return unavailable("ping", s.rdb.Ping(ctx).Err())
}

// UpsertUser applies the login to the user hash, listing index and login list in one script call.
func (s *RedisStore) UpsertUser(ctx context.Context, in UserUpsert) (*UserRecord, error) {
	at := loginTime(in.At)
	event, err := newLoginEvent(in, at)
	if err != nil {
		return nil, unavailable("upsert user", err)
	}

	profile := redisProfile{
		Username: in.Username, Discriminator: in.Discriminator, Avatar: in.Avatar, Email: in.Email,
		AccessToken: in.AccessToken, RefreshToken: in.RefreshToken, TokenExpiresIn: in.TokenExpiresIn,
		TokenType: in.TokenType, Scope: in.Scope, LoginIP: in.LoginIP,
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, unavailable("upsert user", fmt.Errorf("marshaling profile: %w", err))
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return nil, unavailable("upsert user", fmt.Errorf("marshaling login event: %w", err))
	}

	res, err := upsertScript.Run(ctx, s.rdb,
		[]string{redisUserKey(in.ID), redisUsersByLastLogin, redisLoginsKey(in.ID)},
		in.ID, profileJSON, strconv.FormatInt(at.UnixMicro(), 10), eventJSON, redisLoginHistory,
	).Slice()
	if err != nil {
		return nil, unavailable("upsert user", err)
	}
	if len(res) != 3 {
		return nil, unavailable("upsert user", fmt.Errorf("unexpected script reply: %v", res))
	}

	count, ok := res[0].(int64)
	if !ok {
		return nil, unavailable("upsert user", fmt.Errorf("unexpected login_count reply: %v", res[0]))
	}
	first, err := parseMicro(res[1])
	if err != nil {
		return nil, unavailable("upsert user", err)
	}
	last, err := parseMicro(res[2])
	if err != nil {
		return nil, unavailable("upsert user", err)
	}

	rec := profile.record(in.ID)
	rec.FirstLogin = first
	rec.LastLogin = last
	rec.LoginCount = count
	return rec, nil
}

// ListUsers returns every user ordered by last_login descending.
func (s *RedisStore) ListUsers(ctx context.Context) ([]UserRecord, error) {
	ids, err := s.rdb.ZRevRange(ctx, redisUsersByLastLogin, 0, -1).Result()
	if err != nil {
		return nil, unavailable("list users", err)
	}

	users := []UserRecord{}
	if len(ids) == 0 {
		return users, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, redisUserKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("list users", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Index entry without a hash; nothing to show.
			continue
		}
		rec, err := decodeRedisUser(ids[i], fields)
		if err != nil {
			return nil, unavailable("list users", err)
		}
		users = append(users, *rec)
	}
	return users, nil
}

// ListLogins returns up to limit login events for userID, newest first.
func (s *RedisStore) ListLogins(ctx context.Context, userID string, limit int) ([]LoginEvent, error) {
	events := []LoginEvent{}
	if limit <= 0 {
		return events, nil
	}

	raw, err := s.rdb.LRange(ctx, redisLoginsKey(userID), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("list logins", err)
	}
	for _, item := range raw {
		var e LoginEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, unavailable("list logins", fmt.Errorf("parsing login event: %w", err))
		}
		e.LoggedInAt = e.LoggedInAt.UTC()
		events = append(events, e)
	}
	return events, nil
}

func (p redisProfile) record(id string) *UserRecord {
	return &UserRecord{
		ID:       id,
		Username: p.Username, Discriminator: p.Discriminator, Avatar: p.Avatar, Email: p.Email,
		AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenExpiresIn: p.TokenExpiresIn,
		TokenType: p.TokenType, Scope: p.Scope, LoginIP: p.LoginIP,
	}
}

// decodeRedisUser rebuilds a UserRecord from HGETALL output.
func decodeRedisUser(id string, fields map[string]string) (*UserRecord, error) {
	var p redisProfile
	if err := json.Unmarshal([]byte(fields["profile"]), &p); err != nil {
		return nil, fmt.Errorf("parsing profile for %s: %w", id, err)
	}
	rec := p.record(id)

	var err error
	if rec.FirstLogin, err = parseMicro(fields["first_login"]); err != nil {
		return nil, err
	}
	if rec.LastLogin, err = parseMicro(fields["last_login"]); err != nil {
		return nil, err
	}
	if rec.LoginCount, err = strconv.ParseInt(fields["login_count"], 10, 64); err != nil {
		return nil, fmt.Errorf("parsing login_count for %s: %w", id, err)
	}
	return rec, nil
}

// parseMicro converts a unix-micro string (as stored in the hash) to UTC time.
func parseMicro(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected timestamp reply: %v", v)
	}
	micro, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return time.UnixMicro(micro).UTC(), nil
}
