package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"xui-sync/pkg/xuiclient"
)

const descriptorTTL = 30 * time.Minute

// DescriptorCache is a redis read-through cache of the latest generated
// connection descriptors per subscription. The client mirror row stays
// the source of truth.
type DescriptorCache struct {
	rdb *redis.Client
}

// NewDescriptorCache creates a descriptor cache
func NewDescriptorCache(rdb *redis.Client) *DescriptorCache {
	return &DescriptorCache{rdb: rdb}
}

// Get returns the cached descriptors, or nil on a miss
func (c *DescriptorCache) Get(ctx context.Context, subscriptionID uint) (*xuiclient.ConnectionConfig, error) {
	raw, err := c.rdb.Get(ctx, descriptorKey(subscriptionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg xuiclient.ConnectionConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Set stores the descriptors with a TTL
func (c *DescriptorCache) Set(ctx context.Context, subscriptionID uint, cfg *xuiclient.ConnectionConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, descriptorKey(subscriptionID), raw, descriptorTTL).Err()
}

// Invalidate drops cached descriptors after re-provisioning
func (c *DescriptorCache) Invalidate(ctx context.Context, subscriptionID uint) error {
	return c.rdb.Del(ctx, descriptorKey(subscriptionID)).Err()
}

func descriptorKey(subscriptionID uint) string {
	return fmt.Sprintf("xui-sync:descriptors:%d", subscriptionID)
}
