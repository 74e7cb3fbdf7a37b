// internal/bank/store.go
//
// 本檔定義 Engine 與 QueryService 依賴的儲存介面。
// 實作位於 internal/storage/memory 與 internal/storage/sqlstore。

package bank

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 儲存層回傳的原始結果，由 Engine 轉換為 *Error。
var (
	ErrNoAccount     = errors.New("store: account not found")
	ErrNoRecord      = errors.New("store: transfer record not found")
	ErrWouldOverdraw = errors.New("store: delta would overdraw account")
	ErrDuplicateKey  = errors.New("store: idempotency key already used")
	ErrNotLocked     = errors.New("store: account not locked by transaction")
	ErrAccountExists = errors.New("store: account key already registered")
)

// AccountStore 為帳戶的查詢與唯一變更入口。
type AccountStore interface {
	Lookup(ctx context.Context, key string) (Account, error)
	// ApplyDelta 以 delta 調整餘額；結果為負時回傳 ErrWouldOverdraw 與當下帳戶狀態，且不做任何變更。
	ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (Account, error)
}

// HistoryStore 為只可追加的轉帳紀錄。
type HistoryStore interface {
	// Append 追加一筆紀錄並設定 rec.ID；在交易內呼叫時，ID 於提交成功後才保證有效。
	Append(ctx context.Context, rec *TransferRecord) error
	// ListByAccount 依新到舊排序；limit <= 0 表示不限筆數。
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]TransferRecord, error)
	ByIdempotencyKey(ctx context.Context, key string) (TransferRecord, error)
}

// Tx 為一個原子單元內可用的儲存操作。
type Tx interface {
	// Lock 取得帳戶的排他鎖直到交易結束；等待期間可被 ctx 取消。
	Lock(ctx context.Context, id uuid.UUID) error
	Accounts() AccountStore
	History() HistoryStore
}

// Store 為完整的帳本儲存。
// InTx 內 fn 回傳錯誤時所有變更皆不生效；成功時一次提交。
type Store interface {
	Accounts() AccountStore
	History() HistoryStore
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// BalanceCache 為選用的餘額快取，只保存已提交的帳戶狀態。
// 每個 key 帶有世代編號：Invalidate 遞增世代並刪除項目；
// Fill 只在世代仍等於查詢前讀到的 gen 時寫入。
type BalanceCache interface {
	// Get 命中時回傳帳戶；未命中時回傳該 key 目前的世代。
	Get(ctx context.Context, key string) (acc Account, gen int64, ok bool)
	Fill(ctx context.Context, acc Account, gen int64)
	Invalidate(ctx context.Context, keys ...string)
}
