// internal/storage/model.go
//
// 定義帳本 JSON 快照的結構模型。
// 記憶體後端以此格式匯出／還原帳戶與轉帳紀錄；Meta 保存版本與建立時間，
// 載入時據以檢查格式相容性。
package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotVersion 為目前的快照格式版本。
const SnapshotVersion = 2

// Meta 為快照的中繼資料。
type Meta struct {
	Storage   string    `json:"storage"`        // 儲存類型，固定為 "json_snapshot"
	Version   int       `json:"version"`        // 結構版本號
	Timestamp time.Time `json:"timestamp"`      // 快照建立時間
	Note      string    `json:"note,omitempty"` // 備註
}

// PersistAccount 為帳戶在快照中的序列化格式。
type PersistAccount struct {
	ID        uuid.UUID       `json:"id"`
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// PersistTransfer 為轉帳紀錄在快照中的序列化格式。
type PersistTransfer struct {
	ID             int64           `json:"id"`
	EmitterID      uuid.UUID       `json:"emitter_id"`
	ReceiverID     uuid.UUID       `json:"receiver_id"`
	Amount         decimal.Decimal `json:"amount"`
	Detail         string          `json:"detail,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Snapshot 為帳本狀態的完整快照；Transfers 依提交順序排列。
type Snapshot struct {
	Meta      Meta              `json:"_meta"`
	NextID    int64             `json:"next_id"` // 下一筆轉帳紀錄可用 ID
	Accounts  []PersistAccount  `json:"accounts"`
	Transfers []PersistTransfer `json:"transfers"`
}
