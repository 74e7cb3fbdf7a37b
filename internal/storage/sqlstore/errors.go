package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/carol-yiyun/transfer-ledger/internal/bank"
)

// translate 將資料庫錯誤轉換為 bank 套件的儲存層錯誤。
// 序列化失敗與死結回傳 Conflict；其餘原樣包裝，交由 Engine 歸類為 StoreUnavailable。
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return bank.ErrDuplicateKey
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("sqlstore %s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return bank.ErrDuplicateKey
		case "23514": // check_violation
			return bank.ErrWouldOverdraw
		case "40001", "40P01", "55P03": // serialization/deadlock/lock_not_available
			return bank.Conflict(fmt.Errorf("sqlstore %s: %w", op, err))
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"):
		return bank.ErrDuplicateKey
	case strings.Contains(msg, "check constraint failed"):
		return bank.ErrWouldOverdraw
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "deadlock"):
		return bank.Conflict(fmt.Errorf("sqlstore %s: %w", op, err))
	}
	return fmt.Errorf("sqlstore %s: %w", op, err)
}
