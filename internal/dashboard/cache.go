package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss はキャッシュにビューがないことを表す。
var ErrCacheMiss = errors.New("view cache miss")

// ViewCache はユーザーごとのダッシュボードビューを保持する。
//
// 書き込みは無効化の世代で条件付けされる。読み込み前にGenerationで世代を取り、
// 組み立てたビューはSetIfGenerationで保存する。その間に（どのインスタンスからでも）
// Invalidateされていれば保存されない。
type ViewCache interface {
	Get(ctx context.Context, userID string) (*View, error)
	Generation(ctx context.Context, userID string) (uint64, error)
	SetIfGeneration(ctx context.Context, userID string, gen uint64, view *View) (bool, error)
	Invalidate(ctx context.Context, userIDs ...string) error
}

type memoryEntry struct {
	view      View
	expiresAt time.Time
}

// MemoryViewCache はプロセス内でTTL付きにビューを保持する。
type MemoryViewCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time

	// 世代は単調増加するseqから払い出す。記録のないユーザーの世代はfloor。
	// Sweepで記録を捨てるときはfloorをseqまで進めるので、どのユーザーの世代も減らない。
	gens  map[string]uint64
	seq   uint64
	floor uint64
}

// NewMemoryViewCache はMemoryViewCacheを生成する。
func NewMemoryViewCache(ttl time.Duration) *MemoryViewCache {
	return &MemoryViewCache{
		entries: make(map[string]memoryEntry),
		gens:    make(map[string]uint64),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get はビューのコピーを返す。期限切れの場合はErrCacheMissを返す。
func (c *MemoryViewCache) Get(_ context.Context, userID string) (*View, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, ErrCacheMiss
	}
	v := e.view
	return &v, nil
}

// Generation はユーザーの現在の無効化世代を返す。
func (c *MemoryViewCache) Generation(_ context.Context, userID string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generationLocked(userID), nil
}

func (c *MemoryViewCache) generationLocked(userID string) uint64 {
	if g, ok := c.gens[userID]; ok {
		return g
	}
	return c.floor
}

// SetIfGeneration は世代がgenのままの場合だけビューを保存する。
func (c *MemoryViewCache) SetIfGeneration(_ context.Context, userID string, gen uint64, view *View) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generationLocked(userID) != gen {
		return false, nil
	}
	c.entries[userID] = memoryEntry{view: *view, expiresAt: c.now().Add(c.ttl)}
	return true, nil
}

// Invalidate は世代を進め、指定ユーザーのビューを破棄する。
func (c *MemoryViewCache) Invalidate(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.seq++
		c.gens[id] = c.seq
		delete(c.entries, id)
	}
	return nil
}

// Sweep は期限切れのビューと世代の記録を削除し、削除したビューの件数を返す。
func (c *MemoryViewCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
			n++
		}
	}
	if len(c.gens) > 0 {
		c.floor = c.seq
		clear(c.gens)
	}
	return n
}

// generationTTL はRedis上の世代キーの寿命。ビューの読み込みより十分長くする。
const generationTTL = 24 * time.Hour

// setIfGeneration は世代キーが期待値のときだけビューを書き込む。
// KEYS[1]=ビュー, KEYS[2]=世代, ARGV[1]=期待する世代, ARGV[2]=JSON, ARGV[3]=TTL(ms)
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur == false then cur = '0' end
if cur ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisViewCache はRedisにJSONでビューを保持する。
// 複数インスタンスで同じキャッシュを共有する場合に使う。
// 無効化の世代もRedisに置くため、どのインスタンスの無効化も全体に効く。
type RedisViewCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisViewCache はRedisViewCacheを生成する。
// keyPrefixが空の場合は "bitesync:view:" を使う。
func NewRedisViewCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisViewCache {
	if keyPrefix == "" {
		keyPrefix = "bitesync:view:"
	}
	return &RedisViewCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Get はビューを取得する。キーがない場合はErrCacheMissを返す。
func (c *RedisViewCache) Get(ctx context.Context, userID string) (*View, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get cached view: %w", err)
	}

	var v View
	if err := sonic.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode cached view: %w", err)
	}
	return &v, nil
}

// Generation は世代キーの値を返す。キーがなければ0。
func (c *RedisViewCache) Generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(userID)).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read view generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration は世代がgenのままの場合だけビューをTTL付きで保存する。
func (c *RedisViewCache) SetIfGeneration(ctx context.Context, userID string, gen uint64, view *View) (bool, error) {
	data, err := sonic.Marshal(view)
	if err != nil {
		return false, fmt.Errorf("failed to encode view: %w", err)
	}
	n, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(userID), c.genKey(userID)},
		strconv.FormatUint(gen, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cache view: %w", err)
	}
	return n == 1, nil
}

// Invalidate は世代をINCRで進め、指定ユーザーのビューを破棄する。
func (c *RedisViewCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, c.genKey(id))
			pipe.Expire(ctx, c.genKey(id), generationTTL)
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached views: %w", err)
	}
	return nil
}

func (c *RedisViewCache) key(userID string) string {
	return c.keyPrefix + userID
}

func (c *RedisViewCache) genKey(userID string) string {
	return c.keyPrefix + userID + ":gen"
}

// compile-time interface checks
var (
	_ ViewCache = (*MemoryViewCache)(nil)
	_ ViewCache = (*RedisViewCache)(nil)
)
