package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type PresenceCache interface {
	AddDevice(ctx context.Context, projectID, deviceID, userID string, ttl time.Duration) error
	AliveDevices(ctx context.Context, projectID string) ([]PresenceDevice, error)
	RemoveDevice(ctx context.Context, projectID, deviceID string) error
	SetCursor(ctx context.Context, projectID, deviceID string, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, projectID, deviceID string) ([]byte, error)
}

type PresenceDevice struct {
	DeviceID string
	UserID   string
}

type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddDevice marks a device alive in the project room. Calling it again just
// refreshes the logical TTL.
func (p *redisPresence) AddDevice(ctx context.Context, projectID, deviceID, userID string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	// ZSET score carries expireAt (unix seconds) as a logical TTL
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(projectID), redis.Z{Score: float64(expireAt), Member: deviceID})
	tx.HSet(ctx, namesKey(projectID), deviceID, userID)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveDevice(ctx context.Context, projectID, deviceID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(projectID), deviceID)
	tx.HDel(ctx, namesKey(projectID), deviceID)
	tx.Del(ctx, cursorKey(projectID, deviceID))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) SetCursor(ctx context.Context, projectID, deviceID string, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(projectID, deviceID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, projectID, deviceID string) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(projectID, deviceID)).Bytes()
}

// AliveDevices removes expired members, then returns the devices whose
// logical TTL is still in the future together with their user ids.
func (p *redisPresence) AliveDevices(ctx context.Context, projectID string) ([]PresenceDevice, error) {
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = roomKey(projectID)
	-- KEYS[2] = namesKey(projectID)
	-- ARGV[1] = now (unix seconds)

	local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #expired > 0 then
		redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
		redis.call("HDEL", KEYS[2], unpack(expired))
	end
	return #expired
	`

	script := redis.NewScript(luaScript)
	if _, err := script.Run(ctx, p.rdb, []string{roomKey(projectID), namesKey(projectID)}, now).Int(); err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(projectID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // strictly greater than now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(projectID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	devices := make([]PresenceDevice, 0, len(aliveIDs))
	for i, deviceID := range aliveIDs {
		userID := ""
		if i < len(names) && names[i] != nil {
			userID, _ = names[i].(string)
		}
		devices = append(devices, PresenceDevice{DeviceID: deviceID, UserID: userID})
	}
	return devices, nil
}
