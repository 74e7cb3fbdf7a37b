// Package bank 定義轉帳帳本的領域模型與業務規則。
// 本檔定義 Account 與 TransferRecord 結構，不含任何 HTTP 或儲存細節。

package bank

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale 為金額允許的小數位數。
const MoneyScale = 2

// Account represents a ledger account, addressed externally by its phone-number key.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// TransferRecord is the immutable audit entry of one committed transfer.
type TransferRecord struct {
	ID             int64           `json:"id"`
	EmitterID      uuid.UUID       `json:"emitter_id"`
	ReceiverID     uuid.UUID       `json:"receiver_id"`
	EmitterKey     string          `json:"emitter_key"`
	ReceiverKey    string          `json:"receiver_key"`
	EmitterName    string          `json:"emitter_name"`
	ReceiverName   string          `json:"receiver_name"`
	Amount         decimal.Decimal `json:"amount"`
	Detail         string          `json:"detail,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"timestamp"`

	// Replayed 表示此筆為 idempotency key 命中的既有紀錄，不會持久化。
	Replayed bool `json:"replayed,omitempty"`
}

// TransferRequest 為 Engine.Transfer 的輸入。
type TransferRequest struct {
	EmitterKey     string
	ReceiverKey    string
	Amount         decimal.Decimal
	Detail         string
	IdempotencyKey string
}

// Involves 回傳該紀錄是否與指定帳戶有關（轉出或轉入）。
func (r TransferRecord) Involves(id uuid.UUID) bool {
	return r.EmitterID == id || r.ReceiverID == id
}
