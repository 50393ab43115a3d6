package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"journeykit/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"JOURNEYKIT_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"JOURNEYKIT_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"JOURNEYKIT_REDIS_DB"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// StateTTL is how long an assembled UserState stays cached.
	StateTTL time.Duration `json:"state_ttl" env:"JOURNEYKIT_REDIS_STATE_TTL"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		StateTTL:     5 * time.Minute,
	}
}

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure, per user and session:
// - journey:{user}:{session}:badges -> hash badge key -> UserBadge JSON
// - journey:{user}:{session}:points -> int64 total
// - journey:{user}:{session}:tx -> list of recent PointsTransaction JSON
// - journey:{user}:{session}:state -> cached UserState JSON
type Store struct {
	client   *redis.Client
	stateTTL time.Duration
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewWithClient(client)
	if config.StateTTL > 0 {
		s.stateTTL = config.StateTTL
	}
	return s, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, stateTTL: 5 * time.Minute}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func sessionKey(user core.UserID, session core.SessionID, part string) string {
	return fmt.Sprintf("journey:%s:%s:%s", user, session, part)
}

func badgesKey(user core.UserID, session core.SessionID) string {
	return sessionKey(user, session, "badges")
}

func pointsKey(user core.UserID, session core.SessionID) string {
	return sessionKey(user, session, "points")
}

func txKey(user core.UserID, session core.SessionID) string {
	return sessionKey(user, session, "tx")
}

func stateKey(user core.UserID, session core.SessionID) string {
	return sessionKey(user, session, "state")
}

// commitScript applies a core.Commit atomically. It checks everything before
// the first write, since Redis does not roll back a failing script.
//
// KEYS: badges hash, points, tx list, state cache
// ARGV: activity points, activity tx JSON, reward tx template JSON,
// max kept transactions, then (badge key, badge JSON, badge points) triples.
var commitScript = redis.NewScript(`
	local delta = tonumber(ARGV[1])
	local fresh = {}
	local seen = {}
	local bonus = 0
	local i = 5
	while i <= #ARGV do
		local key = ARGV[i]
		if not seen[key] and redis.call('HEXISTS', KEYS[1], key) == 0 then
			seen[key] = true
			table.insert(fresh, i)
			bonus = bonus + tonumber(ARGV[i + 2])
		end
		i = i + 3
	end

	local current = tonumber(redis.call('GET', KEYS[2]) or '0')
	if current + delta + bonus > 9223372036854775807 then
		return redis.error_reply('integer overflow')
	end

	local awarded = {}
	for _, idx in ipairs(fresh) do
		redis.call('HSET', KEYS[1], ARGV[idx], ARGV[idx + 1])
		table.insert(awarded, ARGV[idx])
	end
	local total = redis.call('INCRBY', KEYS[2], delta + bonus)
	redis.call('RPUSH', KEYS[3], ARGV[2])
	if #awarded > 0 then
		local reward = cjson.decode(ARGV[3])
		reward['points'] = bonus
		reward['reference'] = table.concat(awarded, ',')
		redis.call('RPUSH', KEYS[3], cjson.encode(reward))
	end
	redis.call('LTRIM', KEYS[3], -tonumber(ARGV[4]), -1)
	redis.call('DEL', KEYS[4])

	local out = {total, bonus}
	for _, k in ipairs(awarded) do
		table.insert(out, k)
	end
	return out
`)

// Commit writes the activity transaction and any new badges in one script
// run. Badges already in the hash are skipped.
func (s *Store) Commit(ctx context.Context, c core.Commit) (core.Receipt, error) {
	if err := c.Validate(); err != nil {
		return core.Receipt{}, err
	}
	activity, err := json.Marshal(c.Activity)
	if err != nil {
		return core.Receipt{}, err
	}
	reward, err := json.Marshal(c.RewardTransaction(nil, 0))
	if err != nil {
		return core.Receipt{}, err
	}
	args := []any{c.Activity.Points, activity, reward, core.MaxStateTransactions}
	for _, g := range c.Grants {
		row, err := json.Marshal(g.Badge)
		if err != nil {
			return core.Receipt{}, err
		}
		args = append(args, string(g.Badge.BadgeKey), row, g.Points)
	}
	keys := []string{
		badgesKey(c.UserID, c.SessionID),
		pointsKey(c.UserID, c.SessionID),
		txKey(c.UserID, c.SessionID),
		stateKey(c.UserID, c.SessionID),
	}
	res, err := commitScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return core.Receipt{}, fmt.Errorf("failed to commit activity: %w", err)
	}
	if len(res) < 2 {
		return core.Receipt{}, errors.New("unexpected result from commit script")
	}
	total, ok1 := res[0].(int64)
	bonus, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return core.Receipt{}, errors.New("unexpected result type from commit script")
	}
	rec := core.Receipt{Total: total, BadgePoints: int(bonus), Transactions: []string{c.Activity.ID}}
	for _, v := range res[2:] {
		k, _ := v.(string)
		rec.Awarded = append(rec.Awarded, core.BadgeKey(k))
	}
	if len(rec.Awarded) > 0 {
		rec.Transactions = append(rec.Transactions, c.RewardID)
	}
	return rec, nil
}

// OwnedBadges returns the keys of the session's badge hash.
func (s *Store) OwnedBadges(ctx context.Context, user core.UserID, session core.SessionID) (map[core.BadgeKey]struct{}, error) {
	keys, err := s.client.HKeys(ctx, badgesKey(user, session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load badges: %w", err)
	}
	out := make(map[core.BadgeKey]struct{}, len(keys))
	for _, k := range keys {
		out[core.BadgeKey(k)] = struct{}{}
	}
	return out, nil
}

// markSeenScript flips seen/is_new on badge rows in place.
// KEYS: badges hash, state cache. ARGV: badge keys, none meaning all.
var markSeenScript = redis.NewScript(`
	local fields = ARGV
	if #fields == 0 then
		fields = redis.call('HKEYS', KEYS[1])
	end
	local changed = 0
	for _, f in ipairs(fields) do
		local raw = redis.call('HGET', KEYS[1], f)
		if raw then
			local row = cjson.decode(raw)
			if row['seen'] ~= true or row['is_new'] == true then
				row['seen'] = true
				row['is_new'] = false
				redis.call('HSET', KEYS[1], f, cjson.encode(row))
				changed = changed + 1
			end
		end
	end
	if changed > 0 then
		redis.call('DEL', KEYS[2])
	end
	return changed
`)

func (s *Store) MarkSeen(ctx context.Context, user core.UserID, session core.SessionID, keys []core.BadgeKey) (int, error) {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = string(k)
	}
	n, err := markSeenScript.Run(ctx, s.client, []string{badgesKey(user, session), stateKey(user, session)}, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to mark badges seen: %w", err)
	}
	return n, nil
}

// GetState retrieves the complete user state, using cache when possible
func (s *Store) GetState(ctx context.Context, user core.UserID, session core.SessionID) (core.UserState, error) {
	// Try to get from cache first
	cached, err := s.getCachedState(ctx, user, session)
	if err == nil {
		return cached, nil
	}

	// Cache miss or error, rebuild from individual keys
	state, err := s.buildStateFromKeys(ctx, user, session)
	if err != nil {
		return core.UserState{}, err
	}

	// Update cache (best-effort); keep it synchronous for determinism.
	ctxCache, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	_ = s.updateStateCache(ctxCache, state)

	return state, nil
}

// getCachedState attempts to retrieve the cached user state
func (s *Store) getCachedState(ctx context.Context, user core.UserID, session core.SessionID) (core.UserState, error) {
	data, err := s.client.Get(ctx, stateKey(user, session)).Bytes()
	if err != nil {
		return core.UserState{}, err
	}

	var state core.UserState
	if err := json.Unmarshal(data, &state); err != nil {
		return core.UserState{}, err
	}
	if state.Badges == nil {
		state.Badges = map[core.BadgeKey]core.UserBadge{}
	}
	return state, nil
}

// updateStateCache stores the user state in cache with a TTL
func (s *Store) updateStateCache(ctx context.Context, state core.UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, stateKey(state.UserID, state.SessionID), data, s.stateTTL).Err()
}

// buildStateFromKeys reconstructs the user state from individual Redis keys
func (s *Store) buildStateFromKeys(ctx context.Context, user core.UserID, session core.SessionID) (core.UserState, error) {
	state := core.NewUserState(user, session)

	pipe := s.client.Pipeline()
	totalCmd := pipe.Get(ctx, pointsKey(user, session))
	badgesCmd := pipe.HGetAll(ctx, badgesKey(user, session))
	txCmd := pipe.LRange(ctx, txKey(user, session), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return core.UserState{}, fmt.Errorf("failed to load state: %w", err)
	}

	if total, err := totalCmd.Int64(); err == nil {
		state.TotalPoints = total
	} else if !errors.Is(err, redis.Nil) {
		return core.UserState{}, fmt.Errorf("failed to read points: %w", err)
	}
	for k, raw := range badgesCmd.Val() {
		var b core.UserBadge
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			continue // Skip invalid entries
		}
		state.Badges[core.BadgeKey(k)] = b
	}
	for _, raw := range txCmd.Val() {
		var tx core.PointsTransaction
		if err := json.Unmarshal([]byte(raw), &tx); err != nil {
			continue
		}
		state.Transactions = append(state.Transactions, tx)
	}
	return state, nil
}
