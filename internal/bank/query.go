package bank

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/carol-yiyun/transfer-ledger/internal/logger"
)

const defaultHistoryLimit = 50

// QueryService 提供唯讀查詢；只會讀到已提交的狀態。
// 有快取時，Transfer 回傳後開始的 GetBalance 不會讀到該筆轉帳之前的餘額。
type QueryService struct {
	store    Store
	cache    BalanceCache
	log      *logger.Logger
	maxLimit int
	// misses 合併同一帳戶、同一快取世代的未命中，只回源一次。
	misses singleflight.Group
}

type QueryOption func(*QueryService)

// WithQueryCache 以快取服務 GetBalance，未命中時回源並寫回。
func WithQueryCache(c BalanceCache) QueryOption {
	return func(q *QueryService) { q.cache = c }
}

// WithHistoryLimit 設定 GetHistory 單次回傳的上限。
func WithHistoryLimit(n int) QueryOption {
	return func(q *QueryService) {
		if n > 0 {
			q.maxLimit = n
		}
	}
}

func NewQueryService(store Store, log *logger.Logger, opts ...QueryOption) *QueryService {
	if log == nil {
		log = logger.Nop()
	}
	q := &QueryService{store: store, log: log.With("component", "QueryService"), maxLimit: defaultHistoryLimit}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// GetBalance 依 key 回傳帳戶目前狀態（含名稱與餘額）。
func (q *QueryService) GetBalance(ctx context.Context, key string) (Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Account{}, invalid("account key is required")
	}
	if q.cache == nil {
		return q.lookup(ctx, key)
	}
	acc, gen, ok := q.cache.Get(ctx, key)
	if ok {
		return acc, nil
	}
	// 只有同一世代的未命中共用回源結果；失效後開始的查詢一定重新讀取
	flight := key + "@" + strconv.FormatInt(gen, 10)
	v, err, _ := q.misses.Do(flight, func() (interface{}, error) {
		acc, err := q.lookup(ctx, key)
		if err != nil {
			return Account{}, err
		}
		q.cache.Fill(ctx, acc, gen)
		return acc, nil
	})
	if err != nil {
		return Account{}, err
	}
	return v.(Account), nil
}

// GetHistory 回傳與帳戶相關的轉帳紀錄，新到舊排序。
// limit <= 0 或超過上限時以上限計。
func (q *QueryService) GetHistory(ctx context.Context, key string, limit int) ([]TransferRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, invalid("account key is required")
	}
	if limit <= 0 || limit > q.maxLimit {
		limit = q.maxLimit
	}
	acc, err := q.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	records, err := q.store.History().ListByAccount(ctx, acc.ID, limit)
	if err != nil {
		q.log.Error("History lookup failed", "account_key", key, "error", err)
		return nil, classify(err)
	}
	if records == nil {
		records = []TransferRecord{}
	}
	return records, nil
}

func (q *QueryService) lookup(ctx context.Context, key string) (Account, error) {
	acc, err := q.store.Accounts().Lookup(ctx, key)
	if errors.Is(err, ErrNoAccount) {
		return Account{}, notFound("", key)
	}
	if err != nil {
		q.log.Error("Account lookup failed", "account_key", key, "error", err)
		return Account{}, classify(err)
	}
	return acc, nil
}
