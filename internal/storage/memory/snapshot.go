package memory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/storage"
)

// Snapshot 匯出已提交狀態；在讀鎖下取得，不會包含進行中的交易。
func (s *Store) Snapshot() storage.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() storage.Snapshot {
	snap := storage.Snapshot{
		Meta:   storage.Meta{Note: "memory ledger"},
		NextID: s.nextID.Load() + 1,
	}
	snap.Accounts = make([]storage.PersistAccount, 0, len(s.byID))
	for _, a := range s.sortedAccountsLocked() {
		snap.Accounts = append(snap.Accounts, storage.PersistAccount{
			ID: a.ID, Key: a.Key, Name: a.Name, Balance: a.Balance, CreatedAt: a.CreatedAt,
		})
	}
	snap.Transfers = make([]storage.PersistTransfer, 0, len(s.records))
	for _, r := range s.records {
		snap.Transfers = append(snap.Transfers, storage.PersistTransfer{
			ID:             r.ID,
			EmitterID:      r.EmitterID,
			ReceiverID:     r.ReceiverID,
			Amount:         r.Amount,
			Detail:         r.Detail,
			IdempotencyKey: r.IdempotencyKey,
			CreatedAt:      r.CreatedAt,
		})
	}
	return snap
}

// Restore 以快照取代目前狀態；須在開始服務請求前呼叫。
// 快照內容不合法（負餘額、重複 key、紀錄指向不存在的帳戶）時不做任何變更。
func (s *Store) Restore(snap storage.Snapshot) error {
	byID := make(map[uuid.UUID]bank.Account, len(snap.Accounts))
	keys := make(map[string]bool, len(snap.Accounts))
	for _, pa := range snap.Accounts {
		if pa.Balance.IsNegative() {
			return fmt.Errorf("restore: account %s has negative balance", pa.ID)
		}
		if pa.Key == "" || keys[pa.Key] {
			return fmt.Errorf("restore: empty or duplicate account key for %s", pa.ID)
		}
		keys[pa.Key] = true
		byID[pa.ID] = bank.Account{
			ID: pa.ID, Key: pa.Key, Name: pa.Name, Balance: pa.Balance, CreatedAt: pa.CreatedAt,
		}
	}
	maxID := snap.NextID - 1
	for _, pt := range snap.Transfers {
		if _, ok := byID[pt.EmitterID]; !ok {
			return fmt.Errorf("restore: transfer %d references unknown emitter", pt.ID)
		}
		if _, ok := byID[pt.ReceiverID]; !ok {
			return fmt.Errorf("restore: transfer %d references unknown receiver", pt.ID)
		}
		if pt.ID > maxID {
			maxID = pt.ID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, acc := range byID {
		s.byID[acc.ID] = &entry{acc: acc, lock: make(chan struct{}, 1)}
		s.byKey[acc.Key] = acc.ID
	}
	for _, pt := range snap.Transfers {
		s.appendLocked(bank.TransferRecord{
			ID:             pt.ID,
			EmitterID:      pt.EmitterID,
			ReceiverID:     pt.ReceiverID,
			EmitterKey:     byID[pt.EmitterID].Key,
			ReceiverKey:    byID[pt.ReceiverID].Key,
			EmitterName:    byID[pt.EmitterID].Name,
			ReceiverName:   byID[pt.ReceiverID].Name,
			Amount:         pt.Amount,
			Detail:         pt.Detail,
			IdempotencyKey: pt.IdempotencyKey,
			CreatedAt:      pt.CreatedAt,
		})
	}
	if maxID < 0 {
		maxID = 0
	}
	s.nextID.Store(maxID)
	s.log.Info("Ledger restored from snapshot", "accounts", len(byID), "transfers", len(snap.Transfers))
	return nil
}
