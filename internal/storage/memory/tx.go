package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
)

// tx 暫存單一交易的變更；只由建立它的 goroutine 使用。
type tx struct {
	s        *Store
	order    []uuid.UUID
	held     map[uuid.UUID]chan struct{}
	staged   map[uuid.UUID]decimal.Decimal
	appended []*bank.TransferRecord
}

func (t *tx) Accounts() bank.AccountStore { return txAccounts{t} }
func (t *tx) History() bank.HistoryStore  { return txHistory{t} }

// Lock 取得帳戶鎖；重複上鎖同一帳戶為 no-op。等待期間 ctx 取消則放棄。
func (t *tx) Lock(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	t.s.mu.RLock()
	e, ok := t.s.byID[id]
	t.s.mu.RUnlock()
	if !ok {
		return bank.ErrNoAccount
	}
	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.held[id] = e.lock
	t.order = append(t.order, id)
	return nil
}

// release 依上鎖的相反順序釋放。
func (t *tx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		<-t.held[t.order[i]]
	}
	t.order = nil
	t.held = nil
}

// view 回傳帳戶在本交易中的視圖（已提交值疊加暫存值）。
func (t *tx) view(e *entry) bank.Account {
	acc := e.acc
	if bal, ok := t.staged[acc.ID]; ok {
		acc.Balance = bal
	}
	return acc
}

type txAccounts struct{ t *tx }

func (a txAccounts) Lookup(_ context.Context, key string) (bank.Account, error) {
	a.t.s.mu.RLock()
	defer a.t.s.mu.RUnlock()
	e, err := a.t.s.lookup(key)
	if err != nil {
		return bank.Account{}, err
	}
	return a.t.view(e), nil
}

// ApplyDelta 僅允許調整本交易已上鎖的帳戶。
func (a txAccounts) ApplyDelta(_ context.Context, id uuid.UUID, delta decimal.Decimal) (bank.Account, error) {
	if _, ok := a.t.held[id]; !ok {
		return bank.Account{}, bank.ErrNotLocked
	}
	a.t.s.mu.RLock()
	e, ok := a.t.s.byID[id]
	var cur bank.Account
	if ok {
		cur = a.t.view(e)
	}
	a.t.s.mu.RUnlock()
	if !ok {
		return bank.Account{}, bank.ErrNoAccount
	}

	next := cur.Balance.Add(delta)
	if next.IsNegative() {
		return cur, bank.ErrWouldOverdraw
	}
	a.t.staged[id] = next
	cur.Balance = next
	return cur, nil
}

type txHistory struct{ t *tx }

// Append 暫存紀錄；ID 於提交時配發。
func (h txHistory) Append(_ context.Context, rec *bank.TransferRecord) error {
	rec.IdempotencyKey = strings.TrimSpace(rec.IdempotencyKey)
	if rec.IdempotencyKey != "" {
		for _, r := range h.t.appended {
			if r.IdempotencyKey == rec.IdempotencyKey {
				return bank.ErrDuplicateKey
			}
		}
		h.t.s.mu.RLock()
		_, dup := h.t.s.byIdem[rec.IdempotencyKey]
		h.t.s.mu.RUnlock()
		if dup {
			return bank.ErrDuplicateKey
		}
	}
	rec.ID = 0
	rec.Replayed = false
	h.t.appended = append(h.t.appended, rec)
	return nil
}

func (h txHistory) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]bank.TransferRecord, error) {
	var out []bank.TransferRecord
	for i := len(h.t.appended) - 1; i >= 0; i-- {
		if h.t.appended[i].Involves(accountID) {
			out = append(out, *h.t.appended[i])
		}
	}
	h.t.s.mu.RLock()
	out = append(out, h.t.s.listByAccount(accountID, limit)...)
	h.t.s.mu.RUnlock()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h txHistory) ByIdempotencyKey(_ context.Context, key string) (bank.TransferRecord, error) {
	for _, r := range h.t.appended {
		if r.IdempotencyKey == key {
			return *r, nil
		}
	}
	h.t.s.mu.RLock()
	defer h.t.s.mu.RUnlock()
	return h.t.s.byIdempotencyKey(key)
}
