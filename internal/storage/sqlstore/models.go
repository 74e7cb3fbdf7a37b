// internal/storage/sqlstore/models.go
//
// 資料表結構：accounts 與 transfers。
// 以 gorm AutoMigrate 建立；postgres 與 sqlite 共用同一份定義。
package sqlstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
)

type accountRow struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Key       string          `gorm:"column:account_key;size:64;not null;uniqueIndex"`
	Name      string          `gorm:"size:255;not null;default:''"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;check:chk_accounts_balance,balance >= 0"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (accountRow) TableName() string { return "accounts" }

func (r accountRow) toAccount() bank.Account {
	return bank.Account{
		ID:        r.ID,
		Key:       r.Key,
		Name:      r.Name,
		Balance:   r.Balance.Round(bank.MoneyScale),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// transferRow 的 IdempotencyKey 以 NULL 表示未帶 key，唯一索引只約束非 NULL 值。
type transferRow struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	EmitterID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	ReceiverID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Detail         string          `gorm:"size:255;not null;default:''"`
	IdempotencyKey *string         `gorm:"size:128;uniqueIndex"`
	CreatedAt      time.Time       `gorm:"not null"`
}

func (transferRow) TableName() string { return "transfers" }

// transferView 為 transfers 與雙方帳戶 join 後的查詢結果。
type transferView struct {
	ID             int64
	EmitterID      uuid.UUID
	ReceiverID     uuid.UUID
	EmitterKey     string
	ReceiverKey    string
	EmitterName    string
	ReceiverName   string
	Amount         decimal.Decimal
	Detail         string
	IdempotencyKey *string
	CreatedAt      time.Time
}

func (v transferView) toRecord() bank.TransferRecord {
	rec := bank.TransferRecord{
		ID:           v.ID,
		EmitterID:    v.EmitterID,
		ReceiverID:   v.ReceiverID,
		EmitterKey:   v.EmitterKey,
		ReceiverKey:  v.ReceiverKey,
		EmitterName:  v.EmitterName,
		ReceiverName: v.ReceiverName,
		Amount:       v.Amount.Round(bank.MoneyScale),
		Detail:       v.Detail,
		CreatedAt:    v.CreatedAt.UTC(),
	}
	if v.IdempotencyKey != nil {
		rec.IdempotencyKey = *v.IdempotencyKey
	}
	return rec
}
