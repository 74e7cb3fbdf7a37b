// internal/cache/redis.go

// Package cache 以 Redis 保存帳戶的已提交狀態，供餘額查詢使用。
// 快取只是加速層：任何 Redis 錯誤都只記錄日誌，查詢改回源到儲存層。
// 每個帳戶另有一個世代計數器，失效時遞增，回源寫入只在世代未變時生效。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/logger"
)

const defaultPrefix = "ledger:balance:"

type BalanceCache struct {
	rdb    *goredis.Client
	log    *logger.Logger
	ttl    time.Duration
	prefix string
}

var _ bank.BalanceCache = (*BalanceCache)(nil)

// NewBalanceCache 連線到 addr 並以 PING 確認可用；ttl <= 0 時使用 30 秒。
func NewBalanceCache(ctx context.Context, addr string, ttl time.Duration, log *logger.Logger) (*BalanceCache, error) {
	if log == nil {
		log = logger.Nop()
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &BalanceCache{
		rdb:    rdb,
		log:    log.With("component", "RedisBalanceCache"),
		ttl:    ttl,
		prefix: defaultPrefix,
	}, nil
}

// WithPrefix 回傳使用另一個 key 前綴的 BalanceCache（共用連線）。
func (c *BalanceCache) WithPrefix(prefix string) *BalanceCache {
	cp := *c
	cp.prefix = prefix
	return &cp
}

func (c *BalanceCache) key(accountKey string) string {
	return c.prefix + "acct:" + strings.TrimSpace(accountKey)
}

func (c *BalanceCache) genKey(accountKey string) string {
	return c.prefix + "gen:" + strings.TrimSpace(accountKey)
}

// fillScript 僅在世代未變時寫入項目。KEYS: 項目, 世代; ARGV: 讀到的世代, 內容, TTL(ms)。
var fillScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Get 以一次 MGET 讀取項目與世代；未命中時世代用於之後的 Fill。
func (c *BalanceCache) Get(ctx context.Context, key string) (bank.Account, int64, bool) {
	vals, err := c.rdb.MGet(ctx, c.key(key), c.genKey(key)).Result()
	if err != nil {
		c.log.Warn("Balance cache read failed", "account_key", key, "error", err)
		return bank.Account{}, -1, false
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		c.log.Warn("Balance cache generation corrupted", "account_key", key, "error", err)
		return bank.Account{}, -1, false
	}
	raw, ok := vals[0].(string)
	if !ok {
		return bank.Account{}, gen, false
	}
	var acc bank.Account
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		c.log.Warn("Balance cache entry corrupted", "account_key", key, "error", err)
		_ = c.rdb.Del(ctx, c.key(key)).Err()
		return bank.Account{}, gen, false
	}
	return acc, gen, true
}

func parseGen(v interface{}) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected generation type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// Fill 寫入回源讀到的帳戶；期間若有 Invalidate（世代改變）則放棄寫入。
func (c *BalanceCache) Fill(ctx context.Context, acc bank.Account, gen int64) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(acc)
	if err != nil {
		return
	}
	keys := []string{c.key(acc.Key), c.genKey(acc.Key)}
	stored, err := fillScript.Run(ctx, c.rdb, keys, strconv.FormatInt(gen, 10), string(raw), c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Warn("Balance cache write failed", "account_key", acc.Key, "error", err)
		return
	}
	if stored == 0 {
		c.log.Debug("Balance cache fill skipped, entry invalidated meanwhile", "account_key", acc.Key)
	}
}

// Invalidate 在同一個 MULTI 內遞增世代並刪除項目。
func (c *BalanceCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, k := range keys {
			pipe.Incr(ctx, c.genKey(k))
			pipe.Del(ctx, c.key(k))
		}
		return nil
	})
	if err != nil {
		c.log.Warn("Balance cache invalidation failed", "keys", len(keys), "error", err)
	}
}

func (c *BalanceCache) Close() error {
	return c.rdb.Close()
}
