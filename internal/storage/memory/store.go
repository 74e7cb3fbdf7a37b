// internal/storage/memory/store.go

// Package memory 提供 bank.Store 的記憶體實作。
//
// 每個帳戶有一把可取消的排他鎖（容量 1 的 channel），交易持有直到結束。
// 交易內的餘額變更與紀錄追加先暫存在交易中，提交時在全域寫鎖下一次套用，
// 因此讀取端（持讀鎖）只會看到完整提交後的狀態。
// 以 WithPersist 建立時，快照在同一把寫鎖內寫出，寫出失敗的提交不會生效。
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/logger"
	"github.com/carol-yiyun/transfer-ledger/internal/storage"
)

type entry struct {
	acc  bank.Account
	lock chan struct{}
}

// Store 為記憶體帳本。
// - mu：保護已提交狀態（帳戶、紀錄與索引）
// - nextID：最後配發的轉帳紀錄 ID，只在提交時於寫鎖下遞增
// - persist：選用；每次提交在釋放寫鎖前寫入完整快照，失敗則整筆提交撤銷
type Store struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*entry
	byKey     map[string]uuid.UUID
	records   []bank.TransferRecord
	byAccount map[uuid.UUID][]int
	byIdem    map[string]int
	nextID    atomic.Int64
	persist   func(storage.Snapshot) error
	log       *logger.Logger
}

var _ bank.Store = (*Store)(nil)

type Option func(*Store)

// WithPersist 設定提交時的持久化函式（例如寫入 JSON 快照）。
func WithPersist(fn func(storage.Snapshot) error) Option {
	return func(s *Store) { s.persist = fn }
}

// New 建立空白的記憶體帳本。
func New(log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{log: log.With("component", "MemoryStore")}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.byID = make(map[uuid.UUID]*entry)
	s.byKey = make(map[string]uuid.UUID)
	s.records = nil
	s.byAccount = make(map[uuid.UUID][]int)
	s.byIdem = make(map[string]int)
	s.nextID.Store(0)
}

// CreateAccount 以 key、名稱與初始餘額開立帳戶；初始餘額不得為負。
// 帳戶開立屬於外部註冊流程，此處供快照匯入與測試使用。
func (s *Store) CreateAccount(_ context.Context, key, name string, balance decimal.Decimal) (bank.Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return bank.Account{}, fmt.Errorf("account key is required")
	}
	if balance.IsNegative() {
		return bank.Account{}, fmt.Errorf("initial balance must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[key]; ok {
		return bank.Account{}, bank.ErrAccountExists
	}
	acc := bank.Account{
		ID:        uuid.New(),
		Key:       key,
		Name:      name,
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	s.byID[acc.ID] = &entry{acc: acc, lock: make(chan struct{}, 1)}
	s.byKey[key] = acc.ID
	if err := s.persistLocked(); err != nil {
		delete(s.byID, acc.ID)
		delete(s.byKey, key)
		return bank.Account{}, err
	}
	return acc, nil
}

// ListAccounts 回傳所有帳戶的已提交快照，依 key 排序。
func (s *Store) ListAccounts() []bank.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedAccountsLocked()
}

func (s *Store) sortedAccountsLocked() []bank.Account {
	out := make([]bank.Account, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e.acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) Accounts() bank.AccountStore { return storeAccounts{s} }
func (s *Store) History() bank.HistoryStore  { return storeHistory{s} }

// InTx 執行 fn；fn 成功時一次提交所有暫存變更，任何錯誤皆捨棄。
// 帳戶鎖在提交完成後才釋放。
func (s *Store) InTx(ctx context.Context, fn func(tx bank.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:      s,
		held:   make(map[uuid.UUID]chan struct{}),
		staged: make(map[uuid.UUID]decimal.Decimal),
	}
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}
	return s.commit(t)
}

// commit 在寫鎖下套用交易；重複的 idempotency key 會讓整筆交易失敗。
// 紀錄 ID 在此依提交順序配發並寫回呼叫端的紀錄。
// 設定 persist 時，快照寫入失敗會還原本次變更，讀取端不會看到它。
func (s *Store) commit(t *tx) error {
	if len(t.staged) == 0 && len(t.appended) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range t.appended {
		if rec.IdempotencyKey == "" {
			continue
		}
		if _, ok := s.byIdem[rec.IdempotencyKey]; ok {
			return bank.ErrDuplicateKey
		}
	}
	for id, bal := range t.staged {
		if _, ok := s.byID[id]; !ok {
			return bank.ErrNoAccount
		}
		if bal.IsNegative() {
			return bank.ErrWouldOverdraw
		}
	}

	prev := make(map[uuid.UUID]decimal.Decimal, len(t.staged))
	for id, bal := range t.staged {
		prev[id] = s.byID[id].acc.Balance
		s.byID[id].acc.Balance = bal
	}
	mark, lastID := len(s.records), s.nextID.Load()
	for _, rec := range t.appended {
		rec.ID = s.nextID.Add(1)
		s.appendLocked(*rec)
	}

	if err := s.persistLocked(); err != nil {
		for id, bal := range prev {
			s.byID[id].acc.Balance = bal
		}
		s.truncateLocked(mark)
		s.nextID.Store(lastID)
		for _, rec := range t.appended {
			rec.ID = 0
		}
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist(s.snapshotLocked()); err != nil {
		s.log.Error("Snapshot write failed, commit reverted", "error", err)
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// truncateLocked 移除索引 mark 之後的紀錄；這些紀錄一定位於各索引的尾端。
func (s *Store) truncateLocked(mark int) {
	for idx := len(s.records) - 1; idx >= mark; idx-- {
		rec := s.records[idx]
		for _, id := range []uuid.UUID{rec.EmitterID, rec.ReceiverID} {
			if idxs := s.byAccount[id]; len(idxs) > 0 && idxs[len(idxs)-1] == idx {
				s.byAccount[id] = idxs[:len(idxs)-1]
			}
		}
		if rec.IdempotencyKey != "" {
			delete(s.byIdem, rec.IdempotencyKey)
		}
	}
	s.records = s.records[:mark]
}

func (s *Store) appendLocked(rec bank.TransferRecord) {
	idx := len(s.records)
	s.records = append(s.records, rec)
	s.byAccount[rec.EmitterID] = append(s.byAccount[rec.EmitterID], idx)
	s.byAccount[rec.ReceiverID] = append(s.byAccount[rec.ReceiverID], idx)
	if rec.IdempotencyKey != "" {
		s.byIdem[rec.IdempotencyKey] = idx
	}
}

func (s *Store) lookup(key string) (*entry, error) {
	id, ok := s.byKey[strings.TrimSpace(key)]
	if !ok {
		return nil, bank.ErrNoAccount
	}
	return s.byID[id], nil
}

func (s *Store) listByAccount(id uuid.UUID, limit int) []bank.TransferRecord {
	idxs := s.byAccount[id]
	n := len(idxs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]bank.TransferRecord, 0, n)
	for i := len(idxs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[idxs[i]])
	}
	return out
}

func (s *Store) byIdempotencyKey(key string) (bank.TransferRecord, error) {
	idx, ok := s.byIdem[key]
	if !ok {
		return bank.TransferRecord{}, bank.ErrNoRecord
	}
	return s.records[idx], nil
}

// storeAccounts 為交易外的帳戶操作；ApplyDelta 以單筆交易自動提交。
type storeAccounts struct{ s *Store }

func (a storeAccounts) Lookup(_ context.Context, key string) (bank.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	e, err := a.s.lookup(key)
	if err != nil {
		return bank.Account{}, err
	}
	return e.acc, nil
}

func (a storeAccounts) ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (bank.Account, error) {
	var out bank.Account
	err := a.s.InTx(ctx, func(tx bank.Tx) error {
		if err := tx.Lock(ctx, id); err != nil {
			return err
		}
		var err error
		out, err = tx.Accounts().ApplyDelta(ctx, id, delta)
		return err
	})
	return out, err
}

type storeHistory struct{ s *Store }

func (h storeHistory) Append(ctx context.Context, rec *bank.TransferRecord) error {
	return h.s.InTx(ctx, func(tx bank.Tx) error {
		return tx.History().Append(ctx, rec)
	})
}

func (h storeHistory) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]bank.TransferRecord, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.listByAccount(accountID, limit), nil
}

func (h storeHistory) ByIdempotencyKey(_ context.Context, key string) (bank.TransferRecord, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.byIdempotencyKey(key)
}
