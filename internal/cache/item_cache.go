package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	itemListVersionKey = "items:list:version"
	defaultItemListTTL = 60 * time.Second
)

// ItemListKey 商品列表缓存键，包含版本号以便整体失效
func ItemListKey(version int64, category, search string, page, pageSize int) string {
	return fmt.Sprintf(
		"items:list:v%d:%s:%s:%d:%d",
		version,
		strings.ToLower(strings.TrimSpace(category)),
		strings.ToLower(strings.TrimSpace(search)),
		page,
		pageSize,
	)
}

// ItemListVersion 当前商品列表缓存版本，未写入过时为 0
func ItemListVersion(ctx context.Context) (int64, error) {
	if !Enabled() {
		return 0, nil
	}
	version, err := redisClient.Get(ctx, buildKey(itemListVersionKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// InvalidateItemList 版本号加一，旧键自然过期
func InvalidateItemList(ctx context.Context) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Incr(ctx, buildKey(itemListVersionKey)).Err()
}

// GetItemList 读取商品列表缓存
func GetItemList(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := redisClient.Get(ctx, buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetItemList 写入商品列表缓存
func SetItemList(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultItemListTTL
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return redisClient.Set(ctx, buildKey(key), payload, ttl).Err()
}
