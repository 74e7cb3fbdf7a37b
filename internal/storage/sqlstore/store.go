// internal/storage/sqlstore/store.go

// Package sqlstore 以 gorm 實作 bank.Store。
//
// 正式環境使用 postgres：Tx.Lock 以 SELECT ... FOR UPDATE 取得列鎖，
// 交易結束（提交或回滾）時由資料庫釋放。sqlite 不支援列鎖，gorm 會略過
// FOR UPDATE 子句；單一連線下同一時間只有一個交易在執行。
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
	"github.com/carol-yiyun/transfer-ledger/internal/logger"
	"github.com/carol-yiyun/transfer-ledger/internal/storage"
)

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ bank.Store = (*Store)(nil)

// New 以既有的連線建立 Store；資料表須已存在（見 Open）。
func New(db *gorm.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log.With("component", "SQLStore")}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Accounts() bank.AccountStore { return accounts{s: s, db: s.db} }
func (s *Store) History() bank.HistoryStore  { return history{db: s.db} }

// InTx 以資料庫交易執行 fn；fn 回傳錯誤時回滾。
func (s *Store) InTx(ctx context.Context, fn func(tx bank.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		fnErr = fn(&tx{s: s, db: gtx, held: make(map[uuid.UUID]bool)})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return translate("commit", err)
}

// CreateAccount 開立帳戶；key 已存在時回傳 bank.ErrAccountExists。
func (s *Store) CreateAccount(ctx context.Context, key, name string, balance decimal.Decimal) (bank.Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return bank.Account{}, fmt.Errorf("account key is required")
	}
	if balance.IsNegative() {
		return bank.Account{}, fmt.Errorf("initial balance must be >= 0")
	}
	row := accountRow{
		ID:        uuid.New(),
		Key:       key,
		Name:      name,
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		err = translate("create account", err)
		if errors.Is(err, bank.ErrDuplicateKey) {
			return bank.Account{}, bank.ErrAccountExists
		}
		return bank.Account{}, err
	}
	return row.toAccount(), nil
}

// SeedAccounts 將快照中的帳戶匯入資料庫，已存在的 key 略過；回傳新增筆數。
// 快照中的轉帳紀錄不匯入。
func (s *Store) SeedAccounts(ctx context.Context, accs []storage.PersistAccount) (int, error) {
	created := 0
	for _, pa := range accs {
		row := accountRow{
			ID:        pa.ID,
			Key:       strings.TrimSpace(pa.Key),
			Name:      pa.Name,
			Balance:   pa.Balance,
			CreatedAt: pa.CreatedAt.UTC(),
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		if row.Key == "" || row.Balance.IsNegative() {
			return created, fmt.Errorf("sqlstore: invalid seed account %q", pa.Key)
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return created, translate("seed account", res.Error)
		}
		created += int(res.RowsAffected)
	}
	if created > 0 {
		s.log.Info("Accounts seeded", "count", created)
	}
	return created, nil
}

// tx 為單一資料庫交易；held 記錄本交易已上鎖的帳戶。
type tx struct {
	s    *Store
	db   *gorm.DB
	held map[uuid.UUID]bool
}

func (t *tx) Accounts() bank.AccountStore { return accounts{s: t.s, db: t.db, t: t} }
func (t *tx) History() bank.HistoryStore  { return history{db: t.db} }

func (t *tx) Lock(ctx context.Context, id uuid.UUID) error {
	if t.held[id] {
		return nil
	}
	var row accountRow
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bank.ErrNoAccount
	}
	if err != nil {
		return translate("lock", err)
	}
	t.held[id] = true
	return nil
}

// accounts 在 t 為 nil 時代表交易外的操作。
type accounts struct {
	s  *Store
	db *gorm.DB
	t  *tx
}

func (a accounts) Lookup(ctx context.Context, key string) (bank.Account, error) {
	var row accountRow
	err := a.db.WithContext(ctx).Take(&row, "account_key = ?", strings.TrimSpace(key)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bank.Account{}, bank.ErrNoAccount
	}
	if err != nil {
		return bank.Account{}, translate("lookup", err)
	}
	return row.toAccount(), nil
}

func (a accounts) ApplyDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (bank.Account, error) {
	if a.t == nil {
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
	if !a.t.held[id] {
		return bank.Account{}, bank.ErrNotLocked
	}

	var row accountRow
	err := a.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bank.Account{}, bank.ErrNoAccount
	}
	if err != nil {
		return bank.Account{}, translate("apply delta", err)
	}
	cur := row.toAccount()
	next := cur.Balance.Add(delta)
	if next.IsNegative() {
		return cur, bank.ErrWouldOverdraw
	}

	res := a.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", id).Update("balance", next)
	if res.Error != nil {
		return cur, translate("apply delta", res.Error)
	}
	if res.RowsAffected != 1 {
		return cur, bank.ErrNoAccount
	}
	cur.Balance = next
	return cur, nil
}

type history struct{ db *gorm.DB }

func (h history) Append(ctx context.Context, rec *bank.TransferRecord) error {
	row := transferRow{
		EmitterID:  rec.EmitterID,
		ReceiverID: rec.ReceiverID,
		Amount:     rec.Amount,
		Detail:     rec.Detail,
		CreatedAt:  rec.CreatedAt,
	}
	if k := strings.TrimSpace(rec.IdempotencyKey); k != "" {
		row.IdempotencyKey = &k
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := h.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate("append", err)
	}
	rec.ID = row.ID
	rec.Replayed = false
	return nil
}

// joined 回傳 transfers 與雙方帳戶 join 的查詢，帶出雙方的 key 與名稱。
func (h history) joined(ctx context.Context) *gorm.DB {
	return h.db.WithContext(ctx).
		Table("transfers AS t").
		Select("t.id, t.emitter_id, t.receiver_id, e.account_key AS emitter_key, r.account_key AS receiver_key, " +
			"e.name AS emitter_name, r.name AS receiver_name, " +
			"t.amount, t.detail, t.idempotency_key, t.created_at").
		Joins("JOIN accounts AS e ON e.id = t.emitter_id").
		Joins("JOIN accounts AS r ON r.id = t.receiver_id")
}

func (h history) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]bank.TransferRecord, error) {
	q := h.joined(ctx).
		Where("t.emitter_id = ? OR t.receiver_id = ?", accountID, accountID).
		Order("t.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var views []transferView
	if err := q.Scan(&views).Error; err != nil {
		return nil, translate("list history", err)
	}
	out := make([]bank.TransferRecord, 0, len(views))
	for _, v := range views {
		out = append(out, v.toRecord())
	}
	return out, nil
}

func (h history) ByIdempotencyKey(ctx context.Context, key string) (bank.TransferRecord, error) {
	var views []transferView
	err := h.joined(ctx).
		Where("t.idempotency_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(&views).Error
	if err != nil {
		return bank.TransferRecord{}, translate("history by idempotency key", err)
	}
	if len(views) == 0 {
		return bank.TransferRecord{}, bank.ErrNoRecord
	}
	return views[0].toRecord(), nil
}
