package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront-api/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// New wraps an existing go-redis client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

// RememberOrder stores the order created for an idempotency key, scoped per user.
func (c *Client) RememberOrder(ctx context.Context, scope, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(scope, key), orderID, ttl).Err()
}

// LookupOrder returns the order id remembered for an idempotency key, if any.
func (c *Client) LookupOrder(ctx context.Context, scope, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup idempotency key: %w", err)
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return orderID, true, nil
}

// releaseLockScript deletes the lock only while it still holds the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// setProductScript writes a cache entry only if no invalidation happened since
// the version in ARGV[1] was read.
var setProductScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func lockKeyName(lockKey string) string {
	return fmt.Sprintf("lock:%s", lockKey)
}

func productVersionKey(id int64) string {
	return fmt.Sprintf("product:%d:version", id)
}

// AcquireLock acquires a distributed lock and returns the token that owns it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockKeyName(lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases the lock if token still owns it. A lock that expired and
// was taken by someone else is left alone.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return releaseLockScript.Run(ctx, c.rdb, []string{lockKeyName(lockKey)}, token).Err()
}

// GetProduct returns the cached product, or nil on a cache miss, together with
// the entry's version. Pass the version to SetProduct when filling a miss.
func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, int64, error) {
	vals, err := c.rdb.MGet(ctx, productKey(id), productVersionKey(id)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("get cached product %d: %w", id, err)
	}

	var version int64
	if raw, ok := vals[1].(string); ok {
		if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("corrupt cache version for product %d: %w", id, err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, version, nil
	}

	var product models.Product
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		return nil, version, fmt.Errorf("decode cached product %d: %w", id, err)
	}
	return &product, version, nil
}

// SetProduct caches a product for ttl unless the product was invalidated after
// version was read. It reports whether the entry was written.
func (c *Client) SetProduct(ctx context.Context, product *models.Product, version int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(product)
	if err != nil {
		return false, fmt.Errorf("encode product %d: %w", product.ID, err)
	}

	written, err := setProductScript.Run(ctx, c.rdb,
		[]string{productKey(product.ID), productVersionKey(product.ID)},
		strconv.FormatInt(version, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("set cached product %d: %w", product.ID, err)
	}
	return written == 1, nil
}

// InvalidateProducts drops cached entries for the given products and bumps
// their versions, so fills that read the old rows are discarded.
func (c *Client) InvalidateProducts(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, productKey(id))
			pipe.Incr(ctx, productVersionKey(id))
		}
		return nil
	})
	return err
}
