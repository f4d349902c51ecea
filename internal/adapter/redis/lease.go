package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const (
	DefaultLeaseTTL = 6 * time.Hour

	keyPrefix = "hustrun:lease:"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect returns a client and checks the server is reachable.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// compare-and-delete so a stale owner never releases someone else's lease
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeviceLease makes sure a device is driven by one session across processes.
// The key expires after ttl so a crashed process does not hold it forever.
type DeviceLease struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewDeviceLease(client redis.Cmdable, ttl time.Duration) *DeviceLease {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &DeviceLease{client: client, ttl: ttl}
}

func leaseKey(deviceID string) string {
	return keyPrefix + deviceID
}

// Acquire takes the lease for owner. Re-acquiring an owned lease extends it.
func (l *DeviceLease) Acquire(ctx context.Context, deviceID, owner string) (bool, error) {
	const op = "DeviceLease.Acquire"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionLeaseAcquire), deviceID)
	key := leaseKey(deviceID)

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if ok {
		return true, nil
	}

	holder, err := l.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		return l.Acquire(ctx, deviceID, owner)
	case err != nil:
		return false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	case holder != owner:
		return false, nil
	}

	if err := l.client.Expire(ctx, key, l.ttl).Err(); err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("%s: extend: %w", op, err))
	}
	return true, nil
}

// Release drops the lease if owner still holds it.
func (l *DeviceLease) Release(ctx context.Context, deviceID, owner string) error {
	const op = "DeviceLease.Release"
	ctx = wrap.WithDeviceID(wrap.WithAction(ctx, types.ActionLeaseRelease), deviceID)

	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(deviceID)}, owner).Err(); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Holder returns the current owner or "" when the device is free.
func (l *DeviceLease) Holder(ctx context.Context, deviceID string) (string, error) {
	holder, err := l.client.Get(ctx, leaseKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}
